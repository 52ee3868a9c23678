package http

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// OwnerHeader carries the opaque id of the authenticated user. The identity
// provider in front of the service sets it.
const OwnerHeader = "X-Owner-ID"

// OwnerMiddleware rejects requests without an owner and stores the owner in
// the user context and the request logger.
func OwnerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner := strings.TrimSpace(c.Get(OwnerHeader))
		if owner == "" {
			return errUnauthorized(c, OwnerHeader+" header is required")
		}

		ctx := context.WithValue(c.UserContext(), ownerKey, owner)
		ctx = context.WithValue(ctx, loggerKey, LoggerFromCtx(ctx).With("owner_id", owner))
		c.SetUserContext(ctx)
		c.Vary(OwnerHeader)

		return c.Next()
	}
}
