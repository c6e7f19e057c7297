package transport

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rami-aouinti/shopware-sub000/internal/observability"
)

// HeaderCorrelationID is echoed on every response.
const HeaderCorrelationID = "X-Correlation-ID"

// CorrelationID takes the caller's correlation or request id, or mints one, and stores it in the
// request's user context.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(HeaderCorrelationID))
		if id == "" {
			id = strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
		}
		if id == "" {
			id = observability.NewCorrelationID()
		}

		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), id))
		c.Set(HeaderCorrelationID, id)
		return c.Next()
	}
}
