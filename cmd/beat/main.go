package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"crmapi/internal/app"
	"crmapi/internal/config"
	"crmapi/internal/logger"
	"crmapi/internal/otel"
)

func main() {
	cfg := config.Load()
	lg := logger.Setup(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Component: "beat"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, "beat", lg)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	s, err := a.Scheduler()
	if err != nil {
		log.Fatalf("failed to load schedule: %v", err)
	}

	for _, e := range s.Entries() {
		lg.Info("scheduled", "entry", e.Name, "spec", e.Spec, "kind", e.Kind, "task", e.Task, "next", e.Next)
	}
	s.Start(ctx)

	<-ctx.Done()
	lg.Info("stopping scheduler, waiting for running jobs")
	select {
	case <-s.Stop().Done():
	case <-time.After(cfg.Scheduler.JobTimeout):
		lg.Warn("scheduler stop timed out")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		lg.Error("tracing shutdown failed", "error", err)
	}
}
