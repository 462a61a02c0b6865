// Package app assembles the CRM components shared by the api, worker, beat
// and crmctl binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"crmapi/internal/broker"
	"crmapi/internal/config"
	"crmapi/internal/database"
	"crmapi/internal/database/migration"
	"crmapi/internal/events"
	"crmapi/internal/gql"
	"crmapi/internal/jobs"
	"crmapi/internal/repository"
	"crmapi/internal/repository/postgres"
	"crmapi/internal/scheduler"
	"crmapi/internal/service"
	"crmapi/internal/storage"
	"crmapi/internal/task"
)

// App holds long-lived dependencies. Close releases them in reverse order.
type App struct {
	Config   *config.AppConfig
	Logger   *slog.Logger
	Location *time.Location
	Metrics  *prometheus.Registry

	DB     *sql.DB
	Broker *broker.Redis
	Events events.Publisher
	Store  storage.Storage

	Customers service.CustomerService
	Products  service.ProductService
	Orders    service.OrderService
	Reports   service.ReportService

	TaskRepo repository.TaskRepository
	Registry *task.Registry
	Tasks    *task.Client
	Schema   graphql.Schema
	Jobs     *jobs.Jobs

	closers []func() error
}

// New connects to PostgreSQL, Redis, object storage and the event bus and
// wires services on top of them. Object storage is optional: with no
// MINIO_ENDPOINT, report archiving answers storage.ErrDisabled.
func New(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Location: cfg.Location(),
		Metrics:  prometheus.NewRegistry(),
	}
	a.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	b, err := broker.NewRedis(ctx, cfg.Redis, task.Queues())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect broker: %w", err)
	}
	a.Broker = b
	a.closers = append(a.closers, b.Close)

	a.Events = events.NewPublisher(cfg.Kafka, logger)
	a.closers = append(a.closers, a.Events.Close)

	a.Store = storage.Disabled{}
	if cfg.MinIO.Endpoint != "" {
		store, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initialize object storage: %w", err)
		}
		a.Store = store
	}

	customerRepo := postgres.NewCustomerPostgres(db)
	productRepo := postgres.NewProductPostgres(db)
	orderRepo := postgres.NewOrderPostgres(db)
	a.TaskRepo = postgres.NewTaskPostgres(db)

	a.Customers = service.NewCustomerService(customerRepo)
	a.Products = service.NewProductService(productRepo)
	a.Orders = service.NewOrderService(orderRepo, customerRepo, productRepo)
	a.Reports = service.NewReportService(customerRepo, orderRepo, a.Store)

	a.Schema, err = gql.NewSchema(gql.Services{
		Customers: a.Customers,
		Products:  a.Products,
		Orders:    a.Orders,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build graphql schema: %w", err)
	}

	a.Jobs = jobs.New(jobs.Deps{
		Logs:      jobs.NewLogDir(cfg.LogDir),
		GraphQL:   gql.NewClient(cfg.GraphQL.URL, cfg.GraphQL.Timeout),
		Reports:   a.Reports,
		Customers: a.Customers,
		Logger:    logger,
		Location:  a.Location,
	})

	a.Registry = task.NewRegistry()
	if err := a.Jobs.Register(a.Registry); err != nil {
		a.Close()
		return nil, fmt.Errorf("register tasks: %w", err)
	}
	a.Tasks = task.NewClient(b, a.TaskRepo, a.Registry, a.Events, logger)

	return a, nil
}

// Migrate applies pending schema steps.
func (a *App) Migrate(ctx context.Context) error {
	return migration.EnsureMigrated(ctx, a.DB, a.Logger, a.Config.Database.Host)
}

// Worker builds a task worker whose collectors are registered on Metrics.
func (a *App) Worker() (*task.Worker, error) {
	m, err := task.NewMetrics(a.Metrics)
	if err != nil {
		return nil, fmt.Errorf("register task metrics: %w", err)
	}
	cfg := task.WorkerConfigFrom(a.Config.Worker)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("worker config: %w", err)
	}
	return task.NewWorker(a.Broker, a.TaskRepo, a.Registry, a.Events, m, cfg, a.Logger), nil
}

// Scheduler builds the periodic scheduler from the default entries merged
// with the optional schedule file.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	overrides, err := config.LoadSchedule(a.Config.Scheduler.ScheduleFile)
	if err != nil {
		return nil, err
	}
	s := scheduler.New(a.Tasks, a.Jobs.Inline(), scheduler.Options{
		Location:   a.Location,
		JobTimeout: a.Config.Scheduler.JobTimeout,
	}, a.Logger)
	if err := s.AddAll(scheduler.Merge(scheduler.DefaultEntries(), overrides)); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases every opened resource and joins their errors.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
