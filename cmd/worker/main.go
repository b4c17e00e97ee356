package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medivault/health-record-vault/internal/bootstrap"
	"github.com/medivault/health-record-vault/internal/config"
	"github.com/medivault/health-record-vault/internal/observability/logging"
	"github.com/medivault/health-record-vault/internal/observability/metrics"
)

const serviceName = "worker"

const processTimeout = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(serviceName, "info").Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("worker subscribed", "subject", cfg.NATSSubject)
		return app.Queue.SubscribeDocumentIngested(groupCtx, func(handlerCtx context.Context, documentID string) error {
			processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
			defer cancel()

			if doc, err := app.Docs.GetByID(processCtx, documentID); err == nil {
				workerMetrics.ObserveQueueLag(time.Since(doc.UploadedAt))
			}

			workerMetrics.StartDocument()
			start := time.Now()
			err := app.ProcessUC.ProcessByID(processCtx, documentID)
			workerMetrics.FinishDocument(time.Since(start), err)
			if err != nil {
				logger.Error("document processing failed",
					"document_id", documentID,
					"error", err)
			}
			return err
		})
	})

	group.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}
