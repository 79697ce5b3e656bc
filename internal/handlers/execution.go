package handlers

import (
	"nodeflow/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ExecutionHandler exposes execution records and their logs
type ExecutionHandler struct {
	executions *services.ExecutionService
}

func NewExecutionHandler(executions *services.ExecutionService) *ExecutionHandler {
	return &ExecutionHandler{executions: executions}
}

// Get returns one execution with its runtime data and logs
// GET /api/executions/:id
func (h *ExecutionHandler) Get(c *fiber.Ctx) error {
	exec, err := h.executions.Get(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Execution not found",
		})
	}
	return c.JSON(exec)
}

// Logs returns just the execution's log stream
// GET /api/executions/:id/logs
func (h *ExecutionHandler) Logs(c *fiber.Ctx) error {
	exec, err := h.executions.Get(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Execution not found",
		})
	}
	return c.JSON(fiber.Map{
		"executionId": exec.ID,
		"status":      exec.Status,
		"logs":        exec.Logs,
	})
}

// Nodes returns the per-node execution records of one execution
// GET /api/executions/:id/nodes
func (h *ExecutionHandler) Nodes(c *fiber.Ctx) error {
	nodes, err := h.executions.ListNodeExecutions(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load node executions",
		})
	}
	return c.JSON(nodes)
}
