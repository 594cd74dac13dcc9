// Package cli implements the chatsync command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/gochat-sync/internal/config"
	"github.com/Tyrowin/gochat-sync/internal/metrics"
	"github.com/Tyrowin/gochat-sync/internal/observability"
	"github.com/Tyrowin/gochat-sync/internal/realtime"
	"github.com/Tyrowin/gochat-sync/internal/restapi"
)

var (
	version = "dev"
	commit  = "unknown"
)

type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand builds the chatsync command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "chatsync",
		Short: "Real-time sync client for team chat workspaces",
		Long: `chatsync keeps a local view of a chat workspace in sync with the
server's push stream and sends messages optimistically.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file path (YAML)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(newWatchCommand(opts), newSendCommand(opts))
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	_ = godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// runtimeDeps is what every subcommand needs: configuration, a logger and
// the metrics registry.
type runtimeDeps struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func (o *globalOptions) load(stderr io.Writer) (*runtimeDeps, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	return &runtimeDeps{
		cfg:     cfg,
		logger:  observability.NewLogger(stderr, cfg.LogLevel, cfg.LogFormat),
		metrics: metrics.New(),
	}, nil
}

// startMetrics serves /metrics when an address is configured and returns the
// function that stops it.
func (d *runtimeDeps) startMetrics() func() {
	if d.cfg.MetricsAddr == "" {
		return func() {}
	}
	server := metrics.CreateServer(d.cfg.MetricsAddr, metrics.SetupRoutes(d.metrics))
	metrics.StartServer(server, d.logger)
	return func() {
		if err := metrics.ShutdownServer(server, 5*time.Second); err != nil {
			d.logger.Warn("metrics server shutdown", "error", err)
		}
	}
}

func (d *runtimeDeps) newSession(hooks realtime.SessionHooks) *realtime.Session {
	cfg := d.cfg
	api := restapi.NewClient(cfg.APIURL, cfg.Token, restapi.Options{
		ReadRetries: 2,
		Logger:      d.logger.With("component", "restapi"),
	})
	return realtime.NewSession(realtime.SessionConfig{
		Dialer:               realtime.NewWebSocketDialer(cfg.ServerURL, cfg.Token, cfg.HandshakeTimeout),
		API:                  api,
		User:                 realtime.User{UserID: cfg.UserID},
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.ReconnectMaxDelay,
		PendingTimeout:       cfg.PendingTimeout,
		PingInterval:         cfg.PingInterval,
		PongWait:             cfg.PongWait,
		MaxFrameSize:         cfg.MaxFrameSize,
		SendBurst:            cfg.SendRateLimit.Burst,
		SendInterval:         cfg.SendRateLimit.RefillInterval,
		Logger:               d.logger,
		Metrics:              d.metrics,
	}, hooks)
}

type scopeFlags struct {
	workspace int64
	channel   int64
	thread    int64
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64VarP(&f.workspace, "workspace", "w", 0, "workspace id")
	cmd.Flags().Int64Var(&f.channel, "channel", 0, "channel id")
	cmd.Flags().Int64Var(&f.thread, "thread", 0, "thread root message id (optional)")
	_ = cmd.MarkFlagRequired("workspace")
	_ = cmd.MarkFlagRequired("channel")
}

func (f *scopeFlags) scope() (realtime.Scope, error) {
	if f.workspace <= 0 || f.channel <= 0 {
		return realtime.Scope{}, fmt.Errorf("workspace and channel must be positive ids")
	}
	if f.thread < 0 {
		return realtime.Scope{}, fmt.Errorf("thread must be a positive id")
	}
	return realtime.Scope{WorkspaceID: f.workspace, ChannelID: f.channel, ThreadID: f.thread}, nil
}
