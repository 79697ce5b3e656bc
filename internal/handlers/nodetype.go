package handlers

import (
	"log"

	"nodeflow/internal/models"
	"nodeflow/internal/sandbox"
	"nodeflow/internal/services"

	"github.com/gofiber/fiber/v2"
)

// NodeTypeHandler manages the node type registry. Scripts are compiled
// on write so a broken script never reaches the execution path.
type NodeTypeHandler struct {
	nodeTypes *services.NodeTypeService
	runtime   *sandbox.Runtime
}

func NewNodeTypeHandler(nodeTypes *services.NodeTypeService, runtime *sandbox.Runtime) *NodeTypeHandler {
	return &NodeTypeHandler{nodeTypes: nodeTypes, runtime: runtime}
}

// List returns every registered node type
// GET /api/node-types
func (h *NodeTypeHandler) List(c *fiber.Ctx) error {
	nodeTypes, err := h.nodeTypes.List()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load node types",
		})
	}
	return c.JSON(nodeTypes)
}

// Get returns one node type by name
// GET /api/node-types/:name
func (h *NodeTypeHandler) Get(c *fiber.Ctx) error {
	nodeType, err := h.nodeTypes.GetByName(c.Params("name"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Node type not found",
		})
	}
	return c.JSON(nodeType)
}

// Upsert creates or replaces a node type definition. Admin only.
// PUT /api/node-types/:name
func (h *NodeTypeHandler) Upsert(c *fiber.Ctx) error {
	var nodeType models.NodeTypeDefinition
	if err := c.BodyParser(&nodeType); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	nodeType.Name = c.Params("name")
	if nodeType.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Name is required",
		})
	}

	if nodeType.Script != "" {
		if _, err := h.runtime.Compile(nodeType.Name, nodeType.Script); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	if err := h.nodeTypes.Upsert(&nodeType); err != nil {
		log.Printf("❌ [NODETYPE] Failed to save node type %s: %v", nodeType.Name, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save node type",
		})
	}

	log.Printf("✅ [NODETYPE] Saved node type %s", nodeType.Name)
	return c.JSON(fiber.Map{"status": "saved"})
}
