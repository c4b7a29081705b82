package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	// BodyLocalKey holds the decoded request body.
	BodyLocalKey = "body"
	// CookiesLocalKey holds the request cookies as map[string]string.
	CookiesLocalKey = "cookies"
)

// BodyParser decodes JSON and URL-encoded request bodies into locals under
// BodyLocalKey. JSON is stored as decoded (objects as map[string]any);
// form fields are stored as map[string]any with repeated keys collected into
// []string. Other content types pass through untouched. The size limit is
// enforced by the server's BodyLimit.
func BodyParser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := c.Body()
		if len(body) == 0 {
			return c.Next()
		}

		ct := strings.ToLower(string(c.Request().Header.ContentType()))
		switch {
		case strings.HasPrefix(ct, fiber.MIMEApplicationJSON):
			var v any
			if err := c.App().Config().JSONDecoder(body, &v); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "malformed JSON body")
			}
			c.Locals(BodyLocalKey, v)
		case strings.HasPrefix(ct, fiber.MIMEApplicationForm):
			form := make(map[string]any)
			c.Request().PostArgs().VisitAll(func(k, v []byte) {
				key, val := string(k), string(v)
				switch cur := form[key].(type) {
				case nil:
					form[key] = val
				case string:
					form[key] = []string{cur, val}
				case []string:
					form[key] = append(cur, val)
				}
			})
			c.Locals(BodyLocalKey, form)
		}

		return c.Next()
	}
}

// Body returns the JSON object or form decoded by BodyParser, or nil.
func Body(c *fiber.Ctx) map[string]any {
	m, _ := c.Locals(BodyLocalKey).(map[string]any)
	return m
}

// CookieParser parses the Cookie header into locals under CookiesLocalKey.
func CookieParser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		cookies := make(map[string]string)
		c.Request().Header.VisitAllCookie(func(k, v []byte) {
			cookies[string(k)] = string(v)
		})
		c.Locals(CookiesLocalKey, cookies)
		return c.Next()
	}
}

// Cookies returns the cookies parsed by CookieParser.
func Cookies(c *fiber.Ctx) map[string]string {
	m, _ := c.Locals(CookiesLocalKey).(map[string]string)
	return m
}
