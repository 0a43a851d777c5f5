package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/roach88/teamtask/internal/analytics"
	"github.com/roach88/teamtask/internal/auth"
	"github.com/roach88/teamtask/internal/config"
	"github.com/roach88/teamtask/internal/coordinator"
	"github.com/roach88/teamtask/internal/dispatch"
	"github.com/roach88/teamtask/internal/notify"
	"github.com/roach88/teamtask/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Port     int
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Long: `Run the task API and the realtime notification stream.

The server opens the SQLite database (creating it if needed), connects to
Redis for analytics counters and, when enabled, to MongoDB for the event
archive. An unreachable Redis degrades analytics to defaults; it does not
stop the server.

SIGINT or SIGTERM shuts down gracefully: connections are closed and queued
background work is drained.

Example:
  teamtask serve
  teamtask serve --config teamtask.yaml --port 8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "listen port (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd, opts.Database)
	if err != nil {
		return err
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}
	if cfg.Environment == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	counters := openCache(ctx, cfg)
	defer counters.Close()
	agg := analytics.New(counters, analytics.WithTimeout(cfg.Analytics.Timeout))

	sink, releaseArchive, err := openArchive(ctx, cfg, st)
	if err != nil {
		return err
	}
	defer releaseArchive()

	hub := notify.NewHub(notify.WithShards(cfg.Notify.Shards))

	// Workers outlive ctx so that Stop can drain queued work on shutdown.
	pool := dispatch.New(
		dispatch.WithWorkers(cfg.Dispatch.Workers),
		dispatch.WithQueueSize(cfg.Dispatch.QueueSize),
		dispatch.WithJobTimeout(cfg.Dispatch.JobTimeout),
	)
	pool.Start(context.Background())

	coord, err := coordinator.New(st, st,
		coordinator.WithNotifier(hub),
		coordinator.WithRecorder(agg),
		coordinator.WithEventSink(sink),
		coordinator.WithSubmitter(pool),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build coordinator", err)
	}

	issuer, err := auth.NewIssuer(cfg.JWT.Secret, auth.WithTTL(cfg.JWT.TTL))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create token issuer", err)
	}

	srv := server.New(server.Deps{
		Tasks:   coord,
		Users:   st,
		Tokens:  issuer,
		Hub:     hub,
		Metrics: agg,
	},
		server.WithSendBuffer(cfg.Notify.SendBuffer),
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	)

	slog.Info("server starting",
		"addr", cfg.Server.Addr(),
		"environment", cfg.Environment,
		"db_path", cfg.Database.Path,
		"redis_enabled", cfg.Redis.Enabled,
		"mongo_enabled", cfg.Mongo.Enabled)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s. Press Ctrl-C to stop.\n", cfg.Server.Addr())

	runErr := srv.Run(ctx, cfg.Server.Addr(), cfg.Server.ShutdownTimeout)

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := pool.Stop(drainCtx); err != nil {
		slog.Warn("background work not drained", "error", err)
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "server error", runErr)
	}
	slog.Info("server stopped gracefully", "jobs", pool.Stats())
	return nil
}
