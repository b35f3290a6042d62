// Package api is the HTTP front end: scan jobs with progress polling, query
// location and decomposition, sub-task re-location and collaboration analysis.
package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
)

// NewApp builds the Fiber application with every route registered.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "featloc API",
	})
	app.Use(recoverer.New())
	app.Use(cors.New())

	app.Get("/health", h.Health)
	SetupRoutes(app, h)
	return app
}

func SetupRoutes(app *fiber.App, h *Handler) {
	app.Post("/analyze", h.Analyze)
	app.Get("/progress", h.Progress)
	app.Get("/progress/:id", h.JobProgress)

	app.Post("/query", h.Query)
	app.Post("/locate_subtasks", h.LocateSubtasks)
	app.Post("/analyze_collaboration", h.AnalyzeCollaboration)
}
