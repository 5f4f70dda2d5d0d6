package web

import (
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
)

// RegisterRoutes wires the API handlers into a fiber app. The metrics
// handler is optional; pass nil to skip the /metrics endpoint.
func RegisterRoutes(app *fiber.App, handlers *APIHandlers, metricsHandler http.Handler) {
	workflows := app.Group("/workflows")
	workflows.Get("/", handlers.GetWorkflows)
	workflows.Post("/", handlers.CreateWorkflow)
	workflows.Get("/:id", handlers.GetWorkflow)
	workflows.Patch("/:id", handlers.UpdateWorkflow)
	workflows.Delete("/:id", handlers.DeleteWorkflow)
	workflows.Post("/:id/validate", handlers.ValidateWorkflow)
	workflows.Post("/:id/executions", handlers.TriggerRun)

	executions := app.Group("/executions")
	executions.Get("/", handlers.GetExecutions)
	executions.Get("/:id", handlers.GetExecution)
	executions.Post("/:id/cancel", handlers.CancelExecution)

	app.Get("/executors", handlers.GetExecutors)
	app.Get("/health", handlers.HealthCheck)

	if metricsHandler != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metricsHandler))
	}
}
