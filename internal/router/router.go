package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rubrix-app/rubrix-api/internal/config"
	"github.com/rubrix-app/rubrix-api/internal/handler"
	"github.com/rubrix-app/rubrix-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	RubricHandler  *handler.RubricHandler
	SessionHandler *handler.SessionHandler
	ResultHandler  *handler.ResultHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	rubrics := api.Group("/rubrics")
	if deps.RubricHandler != nil {
		deps.RubricHandler.Register(rubrics)
	}
	if deps.SessionHandler != nil {
		deps.SessionHandler.Register(rubrics)
	}
	if deps.ResultHandler != nil {
		deps.ResultHandler.Register(rubrics)
	}
}
