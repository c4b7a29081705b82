package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORS builds the cross-origin middleware for the configured origins.
//
//   - no origins: CORS is disabled (Noop).
//   - "*" anywhere in the list: every origin is allowed.
//   - otherwise: the request Origin is checked against the list on every
//     request and echoed back, with credentials allowed.
func CORS(origins []string) fiber.Handler {
	if len(origins) == 0 {
		return Noop()
	}

	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		o = normalizeOrigin(o)
		if o == "*" {
			return cors.New(cors.Config{AllowOrigins: "*"})
		}
		if o != "" {
			allowed[o] = true
		}
	}

	return cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return allowed[normalizeOrigin(origin)]
		},
		AllowCredentials: true,
	})
}

func normalizeOrigin(o string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
}

// Noop passes the request on. It stands in for middleware that is disabled
// by configuration.
func Noop() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Next()
	}
}
