package handlers

import (
	"time"

	"nodeflow/internal/database"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db *database.DB
}

func NewHealthHandler(db *database.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Handle responds with server health status
// GET /health
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"
	if err := h.db.Ping(); err != nil {
		status = "degraded"
	}
	return c.JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
