package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"

	"crmapi/docs"
	"crmapi/internal/app"
	"crmapi/internal/config"
	handlers "crmapi/internal/http/handler"
	"crmapi/internal/http/middleware"
	"crmapi/internal/logger"
	"crmapi/internal/otel"
)

// @title CRM API
// @version 1.0
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	lg := logger.Setup(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Component: "api"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, "api", lg)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	if err := a.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	prom, err := middleware.NewPrometheusMiddleware(a.Metrics)
	if err != nil {
		log.Fatalf("failed to register http metrics: %v", err)
	}

	srv := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(lg),
		BodyLimit:    4 << 20,
	})

	srv.Use(middleware.RequestID())
	srv.Use(middleware.Recover(lg))
	srv.Use(otelfiber.Middleware())
	srv.Use(prom.Handler())
	srv.Use(middleware.LoggerWithWriter(os.Stdout, a.Location))

	handlers.RegisterRoutes(srv, handlers.Deps{
		Checks: []handlers.Check{
			handlers.DBCheck(a.DB),
			{Name: "broker", Ping: a.Broker.Ping},
		},
		Schema:   a.Schema,
		Tasks:    a.Tasks,
		Reports:  a.Reports,
		Gatherer: a.Metrics,
	})

	// Swagger UI with dynamic host and scheme
	srv.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	go func() {
		<-ctx.Done()
		lg.Info("shutting down http server")
		if err := srv.ShutdownWithTimeout(10 * time.Second); err != nil {
			lg.Error("http shutdown failed", "error", err)
		}
	}()

	addr := ":" + cfg.Port
	lg.Info("http server listening", "addr", addr)
	if err := srv.Listen(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		lg.Error("tracing shutdown failed", "error", err)
	}
}
