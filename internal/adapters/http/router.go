package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"

	"github.com/ShaoKhan/finder-sub000/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// SetupRoutes registers all REST and GraphQL routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Devices stream points about once a second, so the limit is per owner
	// where known and per IP otherwise.
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if owner := c.Get(OwnerHeader); owner != "" {
				return "owner:" + owner
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	sessions := app.Group("/v1/sessions", OwnerMiddleware())
	sessions.Post("/start", timeout.NewWithContext(StartSessionHandler(deps), requestTimeout))
	sessions.Post("/stop", timeout.NewWithContext(StopSessionHandler(deps), requestTimeout))
	sessions.Post("/points", timeout.NewWithContext(AddPointHandler(deps), requestTimeout))
	sessions.Post("/purge", timeout.NewWithContext(PurgeSessionsHandler(deps), requestTimeout))
	sessions.Get("/status", timeout.NewWithContext(SessionStatusHandler(deps), requestTimeout))
	sessions.Get("/history", timeout.NewWithContext(SessionHistoryHandler(deps), requestTimeout))
	sessions.Get("/:id/geojson", timeout.NewWithContext(SessionGeoJSONHandler(deps), requestTimeout))
	sessions.Get("/:id/finds", timeout.NewWithContext(SessionFindsHandler(deps), requestTimeout))
	sessions.Delete("/:id", timeout.NewWithContext(DeleteSessionHandler(deps), requestTimeout))

	app.Post("/graphql", OwnerMiddleware(), GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app, deps.DocsPath)
}
