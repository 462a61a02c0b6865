package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crmapi/internal/app"
	"crmapi/internal/config"
	"crmapi/internal/logger"
	"crmapi/internal/otel"
)

func main() {
	cfg := config.Load()
	lg := logger.Setup(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Component: "worker"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, "worker", lg)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	w, err := a.Worker()
	if err != nil {
		log.Fatalf("failed to build worker: %v", err)
	}

	var metricsSrv *http.Server
	if cfg.Worker.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.Metrics, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			lg.Info("metrics listener started", "addr", cfg.Worker.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("metrics listener failed", "error", err)
			}
		}()
	}

	if err := w.Run(ctx); err != nil {
		log.Fatalf("worker failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		lg.Error("tracing shutdown failed", "error", err)
	}
}
