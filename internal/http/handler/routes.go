package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/graphql-go/graphql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crmapi/internal/service"
)

// Deps are the collaborators the HTTP routes are built from.
type Deps struct {
	Checks   []Check
	Schema   graphql.Schema
	Tasks    TaskService
	Reports  service.ReportService
	Gatherer prometheus.Gatherer
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", HealthCheck(d.Checks...))
	app.Get("/healthz", Liveness())

	graphqlHandler := GraphQL(d.Schema)
	app.Get("/graphql", graphqlHandler)
	app.Post("/graphql", graphqlHandler)

	app.Get("/tasks", ListTasks(d.Tasks))
	app.Post("/tasks/:name", EnqueueTask(d.Tasks))
	app.Get("/tasks/:id", GetTask(d.Tasks))

	app.Get("/reports", ListReports(d.Reports))
	app.Get("/reports/:name/url", ReportURL(d.Reports))
	app.Get("/reports/:name", GetReport(d.Reports))

	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
}
