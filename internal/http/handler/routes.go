package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"svcboot/docs"
	"svcboot/internal/http/middleware"
)

// Builtins configures the routes every service exposes.
type Builtins struct {
	// Pinger backs /health; nil reports healthy without a store check.
	Pinger Pinger
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// RegisterBuiltins attaches health, liveness, metrics and API docs routes.
func RegisterBuiltins(r fiber.Router, b Builtins) {
	r.Get("/health", HealthCheck(b.Pinger))
	r.Get("/healthz", LivenessProbe())

	if b.Gatherer != nil {
		r.Get(middleware.MetricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(b.Gatherer, promhttp.HandlerOpts{})))
	}

	// Swagger UI with dynamic host and scheme
	r.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})
}

// NotFound is the terminal catch-all route. It hands unmatched requests to
// the error handler as 404.
func NotFound() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	}
}
