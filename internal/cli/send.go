package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/gochat-sync/internal/realtime"
)

func newSendCommand(opts *globalOptions) *cobra.Command {
	var (
		flags scopeFlags
		wait  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send TEXT...",
		Short: "Send a message and wait until the server confirms it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := flags.scope()
			if err != nil {
				return err
			}
			deps, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			settled := make(chan realtime.Entry, 1)
			session := deps.newSession(realtime.SessionHooks{
				OnEntry: func(e realtime.Entry) {
					if e.Status == realtime.StatusPending {
						return
					}
					select {
					case settled <- e:
					default:
					}
				},
			})
			defer session.Close()

			session.Mount(scope)
			id, err := session.SendMessage(strings.Join(args, " "))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			select {
			case e := <-settled:
				if e.Status == realtime.StatusFailed {
					return fmt.Errorf("message %d failed: %w", id, e.Err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "sent %d\n", e.CanonicalID)
				return nil
			case <-ctx.Done():
				return fmt.Errorf("message %d: %w", id, ctx.Err())
			}
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVar(&wait, "wait", 35*time.Second, "how long to wait for confirmation")
	return cmd
}
