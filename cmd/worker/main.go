package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/civic-records/internal/bootstrap"
	"github.com/kirillkom/civic-records/internal/config"
	"github.com/kirillkom/civic-records/internal/observability/logging"
	"github.com/kirillkom/civic-records/internal/observability/metrics"
)

const service = "civic-worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(service, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(service)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Observer: metrics.NewLifecycleMetrics(workerMetrics.Registry(), service),
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if cfg.StorageBackend == config.StorageMemory {
		slog.Warn("worker_memory_storage", "detail", "the worker sees only its own in-memory data")
	}

	g, gctx := errgroup.WithContext(ctx)

	if app.Queue != nil {
		g.Go(func() error {
			slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
			return app.Queue.SubscribeDocumentIssued(gctx, func(handlerCtx context.Context, documentID string) error {
				anchorCtx, cancel := context.WithTimeout(handlerCtx, cfg.LedgerTimeout())
				defer cancel()

				workerMetrics.StartMessage()
				start := time.Now()
				err := app.Anchorer.AnchorByID(anchorCtx, documentID)
				workerMetrics.FinishMessage(service, time.Since(start), err)
				return err
			})
		})
	}

	g.Go(func() error {
		return runOutboxLoop(gctx, app, workerMetrics)
	})

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("worker_stopped", "error", err)
		os.Exit(1)
	}
}

// runOutboxLoop retries failed ledger writes every OUTBOX_POLL_SECONDS until
// ctx is done. One failed pass does not stop the loop.
func runOutboxLoop(ctx context.Context, app *bootstrap.App, m *metrics.WorkerMetrics) error {
	interval := time.Duration(app.Config.OutboxPollSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	for {
		drained, err := app.Anchorer.DrainOutbox(ctx, app.Config.OutboxBatchSize)
		if err != nil && ctx.Err() == nil {
			slog.Warn("outbox_drain_failed", "error", err)
		}
		pending, err := app.Outbox.CountPending(ctx)
		if err == nil {
			m.ObserveOutbox(pending, drained)
		}
		if drained > 0 {
			slog.Info("outbox_drained", "anchored", drained, "pending", pending)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-app.Clock.After(interval):
		}
	}
}
