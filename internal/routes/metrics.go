package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterMetricsRoute exposes the Prometheus scrape endpoint when a
// registry is configured.
func RegisterMetricsRoute(app *fiber.App, registry *prometheus.Registry) {
	if registry == nil {
		return
	}
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	app.Get("/metrics", adaptor.HTTPHandler(handler))
}
