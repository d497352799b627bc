package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/screening-api/internal/config"
	"github.com/noah-isme/screening-api/internal/handler"
	"github.com/noah-isme/screening-api/internal/middleware"
	"github.com/noah-isme/screening-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ApplicationHandler *handler.ApplicationHandler
	TestSessionHandler *handler.TestSessionHandler
	StaffHandler       *handler.StaffHandler
	SeedHandler        *handler.SeedHandler
	JWTMiddleware      fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Public intake
	if deps.ApplicationHandler != nil {
		applications := api.Group("/applications", middleware.RateLimit("applications", 5, time.Minute))
		deps.ApplicationHandler.Register(applications)
	}

	// Token-addressed test pages
	if deps.TestSessionHandler != nil {
		tests := api.Group("/tests", middleware.RateLimit("tests", 60, time.Minute))
		deps.TestSessionHandler.Register(tests)
	}

	// Staff dashboard
	if deps.StaffHandler != nil {
		admin := api.Group("/admin", jwtMiddleware, middleware.RequireRole("admin", "staff"))
		deps.StaffHandler.Register(admin)
	}

	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(api.Group("/seed"))
	}
}
