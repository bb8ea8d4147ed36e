/*
main.go - Application entry point

PURPOSE:
  Starts the leave engine server: HTTP API plus the daily batch scheduler.
  Handles configuration, dependency wiring and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from .env and the environment
  2. Configure zerolog
  3. Open the store (SQLite or PostgreSQL) and apply migrations
  4. Wire ledger, engine, run recorder, request workflow, holiday importer
  5. Configure HTTP router
  6. Start the job scheduler
  7. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler; a run in progress stops at the next employee
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

ENVIRONMENT:
  See config/config.go. The most common settings:
  HTTP_PORT, DB_DRIVER, SQLITE_PATH, DATABASE_URL, TIMEZONE, LOG_LEVEL,
  SCHEDULER_ENABLED

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Daily batch runs
  - app/app.go: Dependency wiring
  - cmd/leavectl: Command line operations
*/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/app"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.Setup(os.Stderr, "info", true)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}
	log := logging.Setup(os.Stderr, cfg.LogLevel, cfg.IsDevelopment())

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	loc := cfg.Location()

	handler := api.NewHandler(a.Store, a.Ledger, a.Jobs, a.Requests, a.Importer)
	handler.Today = func() generic.TimePoint { return generic.TodayIn(loc) }
	router := api.NewRouter(handler, log, nil)

	scheduler := api.NewJobScheduler(a.Jobs, loc, log)
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.CheckInterval = cfg.SchedulerInterval
	scheduler.MaxAttempts = cfg.SchedulerAttempts
	scheduler.SettlementHour = cfg.SettlementHour
	scheduler.AccrualHour = cfg.AccrualHour
	scheduler.CompensationHour = cfg.CompensationHour
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("driver", cfg.DBDriver).
			Str("timezone", loc.String()).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info().Msg("server stopped")
	return nil
}
