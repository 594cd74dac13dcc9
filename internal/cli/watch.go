package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/gochat-sync/internal/realtime"
)

func newWatchCommand(opts *globalOptions) *cobra.Command {
	var (
		flags   scopeFlags
		history bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a channel or thread and print its events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := flags.scope()
			if err != nil {
				return err
			}
			deps, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			stopMetrics := deps.startMetrics()
			defer stopMetrics()

			p := &printer{w: cmd.OutOrStdout()}
			session := deps.newSession(p.hooks())
			defer session.Close()

			session.Mount(scope)
			if history {
				msgs, err := session.LoadMessages(cmd.Context())
				if err != nil {
					return err
				}
				for _, m := range msgs {
					p.message(m)
				}
			}

			<-cmd.Context().Done()
			deps.logger.Info("stopping", "scope", scope.Key())
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&history, "history", false, "print the existing messages first")
	return cmd
}

// printer writes session events as one line each.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) hooks() realtime.SessionHooks {
	return realtime.SessionHooks{
		OnNotice: func(n realtime.Notice) {
			if n.Err != nil {
				p.printf("connection %s: %v", n.Kind, n.Err)
				return
			}
			p.printf("connection %s", n.Kind)
		},
		OnEntry: func(e realtime.Entry) {
			p.printf("local %d %s %q", e.TempID, e.Status, e.Message.Content)
		},
		OnMessage: p.message,
		OnChannel: func(kind realtime.EventKind, ch realtime.Channel) {
			p.printf("%s #%d %s", kind, ch.ID, ch.Name)
		},
		OnReaction: func(messageID int64, counts map[string]int) {
			parts := make([]string, 0, len(counts))
			for _, emoji := range slices.Sorted(maps.Keys(counts)) {
				parts = append(parts, fmt.Sprintf("%s=%d", emoji, counts[emoji]))
			}
			p.printf("reactions %d [%s]", messageID, strings.Join(parts, " "))
		},
	}
}

func (p *printer) message(m realtime.Message) {
	author := m.User.DisplayName
	if author == "" {
		author = fmt.Sprintf("user %d", m.UserID)
	}
	p.printf("%d %s <%s> %s", m.MessageID, m.CreatedAt.Format("15:04:05"), author, m.Content)
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.w, format+"\n", args...)
}
