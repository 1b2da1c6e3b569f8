package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tripwirehq/tripwire/internal/core/api"
	"github.com/tripwirehq/tripwire/internal/core/config"
	"github.com/tripwirehq/tripwire/internal/core/db"
	"github.com/tripwirehq/tripwire/internal/core/server"
	"github.com/tripwirehq/tripwire/internal/core/store"
	"github.com/tripwirehq/tripwire/internal/dispatch"
	"github.com/tripwirehq/tripwire/internal/metrics"
	"github.com/tripwirehq/tripwire/internal/schedule"
	"github.com/tripwirehq/tripwire/internal/target"
	"github.com/tripwirehq/tripwire/internal/window"
)

const Version = "0.1.0"

// sweepInterval is how often the event TTL sweeper checks for expired
// events. Hourly is frequent enough for day-scale TTLs.
const sweepInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Tripwire HTTP API service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "HTTP server host")
	serveCmd.Flags().Int("port", 8080, "HTTP server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("host") {
		host, _ := cmd.Flags().GetString("host")
		cfg.Host = host
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Port = port
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}

	logger := newLogger(cfg.LogLevel)

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := db.MigrateUp(database); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}
	stores := store.New(queries)

	m := metrics.New()

	engine, err := dispatch.NewEngine(dispatch.Deps{
		Rules:      stores.Rules,
		Executions: stores.Executions,
		Targets:    stores.Targets,
		EventTypes: stores.EventTypes,
		Aggregator: window.NewEngine(stores.Events),
		Invoker:    target.NewInvoker(cfg.TargetTimeout, logger),
		Observer:   m,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatch engine: %w", err)
	}

	scheduler, err := schedule.NewGocronScheduler(engine.ExecuteScheduled, logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	coordinator := schedule.NewCoordinator(scheduler, stores.Rules, logger)

	// Job handles do not survive restarts; re-register every persisted
	// tumbling rule before the scheduler starts ticking.
	if err := coordinator.Resync(ctx); err != nil {
		return fmt.Errorf("failed to resync tumbling rule jobs: %w", err)
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("scheduler shutdown failed")
		}
	}()

	service, err := api.NewService(stores, coordinator, engine, m, logger, cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	httpServer, err := server.NewHTTPServer(cfg, service.Router())
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := server.NewEventSweeper(stores.Events, cfg.EventTTL, sweepInterval, logger)
	go sweeper.Run(sweepCtx)

	logger.Info().
		Str("version", Version).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Msg("starting Tripwire API")

	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		logger.Info().Msg("shutting down gracefully")
		return httpServer.Shutdown(ctx)
	}
}
