package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/medivault/health-record-vault/internal/adapters/http"
	"github.com/medivault/health-record-vault/internal/bootstrap"
	"github.com/medivault/health-record-vault/internal/config"
	"github.com/medivault/health-record-vault/internal/observability/logging"
	"github.com/medivault/health-record-vault/internal/observability/metrics"
)

const serviceName = "api"

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

	apiMetrics := metrics.NewAPIMetrics(serviceName)
	router := httpadapter.NewRouter(app.QueryUC, app.IngestUC, app.DocumentUC, apiMetrics, serviceName, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", apiMetrics.Handler())
	mux.Handle("/", router.Handler())

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		logger.Error("listen failed", "port", cfg.APIPort, "error", err)
		os.Exit(1)
	}
	if cfg.APIMaxConns > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConns)
	}

	go func() {
		if err := app.AuditSink.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("audit sink stopped", "error", err)
		}
	}()
	go pollAuditDepth(ctx, app, apiMetrics)

	go func() {
		logger.Info("api listening", "port", cfg.APIPort)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("api server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
	// final drain of any spilled audit entries before the process exits
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFlush()
	if err := app.AuditSink.Flush(flushCtx); err != nil {
		logger.Error("final audit flush failed", "error", err)
	}
}

func pollAuditDepth(ctx context.Context, app *bootstrap.App, apiMetrics *metrics.APIMetrics) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if depth, err := app.AuditSink.Depth(ctx); err == nil {
				apiMetrics.SetAuditQueueDepth(depth)
			}
		}
	}
}
