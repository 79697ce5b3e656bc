package handlers

import (
	"log"

	"nodeflow/internal/execution"
	"nodeflow/internal/models"
	"nodeflow/internal/services"

	"github.com/gofiber/fiber/v2"
)

// WorkflowHandler handles workflow CRUD and execution triggers
type WorkflowHandler struct {
	workflows *services.WorkflowService
	runner    *execution.Runner
}

func NewWorkflowHandler(workflows *services.WorkflowService, runner *execution.Runner) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows, runner: runner}
}

type createWorkflowRequest struct {
	Name         string               `json:"name"`
	Graph        models.WorkflowGraph `json:"graph"`
	WorkflowData map[string]any       `json:"workflowData"`
	Schedule     string               `json:"schedule"`
}

// Create stores a new workflow definition
// POST /api/workflows
func (h *WorkflowHandler) Create(c *fiber.Ctx) error {
	var req createWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Name is required",
		})
	}

	ownerID, _ := c.Locals("user_id").(string)
	workflow := &models.Workflow{
		Name:         req.Name,
		OwnerID:      ownerID,
		Graph:        req.Graph,
		WorkflowData: req.WorkflowData,
		Schedule:     req.Schedule,
		Status:       models.StatusDraft,
	}

	created, err := h.workflows.Create(workflow)
	if err != nil {
		log.Printf("❌ [WORKFLOW] Failed to create workflow: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create workflow",
		})
	}

	log.Printf("✅ [WORKFLOW] Created workflow %s (%s)", created.Name, created.ID)
	return c.Status(fiber.StatusCreated).JSON(created)
}

// Get returns a workflow by id
// GET /api/workflows/:id
func (h *WorkflowHandler) Get(c *fiber.Ctx) error {
	workflow, err := h.workflows.Get(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Workflow not found",
		})
	}
	return c.JSON(workflow)
}

type updateGraphRequest struct {
	Graph        models.WorkflowGraph `json:"graph"`
	WorkflowData map[string]any       `json:"workflowData"`
}

// UpdateGraph replaces a workflow's graph and static configuration
// PUT /api/workflows/:id/graph
func (h *WorkflowHandler) UpdateGraph(c *fiber.Ctx) error {
	var req updateGraphRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.workflows.UpdateGraph(c.Params("id"), req.Graph, req.WorkflowData); err != nil {
		log.Printf("❌ [WORKFLOW] Failed to update graph: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update workflow",
		})
	}
	return c.JSON(fiber.Map{"status": "updated"})
}

// Run executes a workflow synchronously and returns the finished
// execution record
// POST /api/workflows/:id/run
func (h *WorkflowHandler) Run(c *fiber.Ctx) error {
	workflowID := c.Params("id")
	if _, err := h.workflows.Get(workflowID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Workflow not found",
		})
	}

	exec, err := h.runner.Launch(c.Context(), workflowID)
	if err != nil {
		log.Printf("❌ [WORKFLOW] Execution failed for %s: %v", workflowID, err)
		if exec == nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to start execution",
			})
		}
	}
	return c.JSON(exec)
}

// RunAsync starts a workflow in the background and returns immediately
// POST /api/workflows/:id/run-async
func (h *WorkflowHandler) RunAsync(c *fiber.Ctx) error {
	workflowID := c.Params("id")
	if _, err := h.workflows.Get(workflowID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Workflow not found",
		})
	}

	h.runner.LaunchInBackground(workflowID)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "started",
	})
}
