package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avelichko/kb-pipeline/internal/bootstrap"
	"github.com/avelichko/kb-pipeline/internal/config"
	"github.com/avelichko/kb-pipeline/internal/core/domain"
)

const (
	cacheCleanupInterval   = time.Hour
	metricsCleanupInterval = 24 * time.Hour
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Feed.SubscribeDocumentChanged(ctx, indexHandler(app)); err != nil {
		slog.Error("subscribe_failed", "error", err)
		os.Exit(1)
	}
	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)

	go runJanitor(ctx, app)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", app.IndexerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerMetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics_server_failed", "error", err)
		os.Exit(1)
	}
}

// indexHandler indexes a changed document. A document that no longer exists
// is removed from the chunk store instead.
func indexHandler(app *bootstrap.App) func(context.Context, string) error {
	return func(ctx context.Context, documentID string) error {
		started := time.Now()
		app.IndexerMetrics.IncInFlight()
		defer app.IndexerMetrics.DecInFlight()

		report, err := app.Indexer.IndexByID(ctx, documentID)
		switch {
		case errors.Is(err, domain.ErrDocumentNotFound):
			if err := app.Indexer.RemoveDocument(ctx, documentID); err != nil {
				app.IndexerMetrics.ObserveDocument("error", 0, time.Since(started))
				return err
			}
			app.IndexerMetrics.ObserveDocument("removed", 0, time.Since(started))
			slog.Info("document_removed", "document_id", documentID)
			return nil
		case err != nil:
			app.IndexerMetrics.ObserveDocument("error", 0, time.Since(started))
			return err
		case report.ChunksCreated == 0 && report.ChunksSkipped > 0:
			app.IndexerMetrics.ObserveDocument("skipped", report.ChunksSkipped, time.Since(started))
			return nil
		default:
			app.IndexerMetrics.ObserveDocument("indexed", report.ChunksCreated, time.Since(started))
			return nil
		}
	}
}

// runJanitor drops expired cache entries hourly and trims the metrics table
// daily to the configured retention.
func runJanitor(ctx context.Context, app *bootstrap.App) {
	cacheTicker := time.NewTicker(cacheCleanupInterval)
	defer cacheTicker.Stop()
	metricsTicker := time.NewTicker(metricsCleanupInterval)
	defer metricsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cacheTicker.C:
			if removed, err := app.Cache.CleanupExpired(ctx); err != nil {
				slog.Warn("cache_cleanup_failed", "error", err)
			} else if removed > 0 {
				slog.Info("cache_cleanup", "removed", removed)
			}
		case <-metricsTicker.C:
			if removed, err := app.Metrics.Cleanup(ctx, app.Config.MetricsRetentionDays); err != nil {
				slog.Warn("metrics_cleanup_failed", "error", err)
			} else if removed > 0 {
				slog.Info("metrics_cleanup", "removed", removed)
			}
		}
	}
}
