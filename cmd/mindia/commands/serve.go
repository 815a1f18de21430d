package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremybastin1207/mindia/internal/app"
	"github.com/jeremybastin1207/mindia/internal/config"
	"github.com/jeremybastin1207/mindia/internal/httpapi"
	"github.com/jeremybastin1207/mindia/internal/logger"
	"github.com/jeremybastin1207/mindia/internal/telemetry"
)

// finishedTaskSweepEvery sets the finished-task sweep's cadence relative
// to the expired-media/orphan sweep's, per spec §4.9's "at a lower
// frequency" (e.g. a 5m cleanup interval sweeps finished tasks hourly).
const finishedTaskSweepEvery = 12

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the task scheduler, upload coordinator, and HTTP contract layer",
	Long: `Run the Task Scheduler's worker pool, the Chunked Upload Coordinator, and
the unauthenticated Task API / Chunked-Upload API HTTP surface, using the
loaded configuration's database, object store, and scheduler settings.

Examples:
  mindia serve
  mindia serve --config /etc/mindia/config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.MustLoad(GetConfigFile())

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.OTLPEndpoint != "",
		ServiceName:    "mindia",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Insecure:       true,
		SampleRate:     1.0,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	logger.Info("configuration loaded", "database_type", cfg.Database.Type, "object_store_type", cfg.ObjectStore.Type)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("error closing database", "error", err)
		}
	}()

	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	logger.Info("scheduler started", "workers", cfg.Scheduler.WorkerCount)

	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	var cleanupWG sync.WaitGroup
	cleanupWG.Add(1)
	go runCleanupLoop(cleanupCtx, &cleanupWG, a, cfg.Cleanup.Interval)
	logger.Info("cleanup loop started", "interval", cfg.Cleanup.Interval)

	router := httpapi.NewRouter(a.TaskHandler, a.UploadHandler)
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serverDone := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverDone <- err
			return
		}
		serverDone <- nil
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("mindia is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}

		a.Scheduler.Shutdown()
		a.Scheduler.Wait()
		cleanupCancel()
		cleanupWG.Wait()
		logger.Info("mindia stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		a.Scheduler.Shutdown()
		a.Scheduler.Wait()
		cleanupCancel()
		cleanupWG.Wait()
		if err != nil {
			logger.Error("HTTP server error", "error", err)
			return err
		}
		logger.Info("mindia stopped")
	}

	return nil
}

// runCleanupLoop drives the Cleanup/Reconciliation Service's three
// periodic sweeps (spec §4.9), mirroring pkg/scheduler.Scheduler's
// ticker-driven mainLoop/reapLoop pattern: the surrounding runtime owns
// the schedule, the service only knows how to run one sweep.
func runCleanupLoop(ctx context.Context, wg *sync.WaitGroup, a *app.App, interval time.Duration) {
	defer wg.Done()

	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var tick int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++

			if deleted, err := a.Cleanup.SweepExpiredMedia(ctx); err != nil {
				logger.ErrorCtx(ctx, "cleanup: expired media sweep failed", "error", err)
			} else if deleted > 0 {
				logger.InfoCtx(ctx, "cleanup: expired media swept", "count", deleted)
			}

			knownKeys, err := a.MediaRepo.ListAllStorageKeys(ctx)
			if err != nil {
				logger.ErrorCtx(ctx, "cleanup: list storage keys failed", "error", err)
			} else if removed, err := a.Cleanup.ReconcileStorageOrphans(ctx, knownKeys); err != nil {
				logger.ErrorCtx(ctx, "cleanup: orphan reconciliation failed", "error", err)
			} else if removed > 0 {
				logger.InfoCtx(ctx, "cleanup: storage orphans removed", "count", removed)
			}

			if tick%finishedTaskSweepEvery == 0 {
				if n, err := a.Cleanup.SweepFinishedTasks(ctx); err != nil {
					logger.ErrorCtx(ctx, "cleanup: finished task sweep failed", "error", err)
				} else if n > 0 {
					logger.InfoCtx(ctx, "cleanup: finished tasks swept", "count", n)
				}
			}
		}
	}
}
