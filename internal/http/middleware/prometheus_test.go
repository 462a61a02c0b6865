package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPromApp(t *testing.T, skip ...string) (*fiber.App, *PrometheusMiddleware, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMiddleware(reg, skip...)
	require.NoError(t, err)

	app := fiber.New()
	app.Use(m.Handler())
	return app, m, reg
}

func TestPrometheusMiddleware(t *testing.T) {
	app, m, _ := newPromApp(t)
	app.Post("/graphql", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/tasks/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Post("/tasks/:name", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "unknown task")
	})

	for _, r := range []struct{ method, path string }{
		{"POST", "/graphql"},
		{"POST", "/graphql"},
		{"GET", "/tasks/9f1c2b7e"},
		{"GET", "/tasks/0aa1"},
		{"POST", "/tasks/nope"},
	} {
		_, err := app.Test(httptest.NewRequest(r.method, r.path, nil))
		require.NoError(t, err)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "/graphql", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/tasks/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "/tasks/:name", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
	assert.Positive(t, testutil.CollectAndCount(m.duration))
}

func TestPrometheusMiddleware_SkipsMetricsAndHealth(t *testing.T) {
	app, _, reg := newPromApp(t, "/healthz")
	app.Get("/metrics", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	app.Test(httptest.NewRequest("GET", "/metrics", nil))
	app.Test(httptest.NewRequest("GET", "/healthz", nil))

	n, err := testutil.GatherAndCount(reg, "crm_http_requests_total")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPrometheusMiddleware_Exposition(t *testing.T) {
	app, _, reg := newPromApp(t)
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusServiceUnavailable) })

	app.Test(httptest.NewRequest("GET", "/health", nil))

	want := `
# HELP crm_http_requests_total HTTP requests by method, route and status code.
# TYPE crm_http_requests_total counter
crm_http_requests_total{method="GET",route="/health",status="503"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(want), "crm_http_requests_total"))
}

func TestNewPrometheusMiddleware_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusMiddleware(reg)
	require.NoError(t, err)

	_, err = NewPrometheusMiddleware(reg)
	assert.Error(t, err)
}
