package handlers

import (
	"log"

	"nodeflow/internal/services"

	"github.com/gofiber/fiber/v2"
)

// CredentialHandler manages the credential store. Values are write-only
// through the API; scripts read them via the injected library.
type CredentialHandler struct {
	credentials *services.CredentialService
}

func NewCredentialHandler(credentials *services.CredentialService) *CredentialHandler {
	return &CredentialHandler{credentials: credentials}
}

// List returns stored credential keys and timestamps. Values are
// stripped by the model's serialization tags.
// GET /api/credentials
func (h *CredentialHandler) List(c *fiber.Ctx) error {
	creds, err := h.credentials.List()
	if err != nil {
		log.Printf("❌ [CREDENTIAL] Failed to list credentials: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list credentials",
		})
	}
	return c.JSON(fiber.Map{"credentials": creds})
}

// Set stores or replaces a credential. Admin only.
// PUT /api/credentials/:key
func (h *CredentialHandler) Set(c *fiber.Ctx) error {
	var req struct {
		Value string `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil || req.Value == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Value is required",
		})
	}

	key := c.Params("key")
	if err := h.credentials.Set(key, req.Value); err != nil {
		log.Printf("❌ [CREDENTIAL] Failed to store %s: %v", key, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store credential",
		})
	}

	log.Printf("✅ [CREDENTIAL] Stored credential %s", key)
	return c.JSON(fiber.Map{"status": "stored"})
}

// Delete removes a credential. Admin only.
// DELETE /api/credentials/:key
func (h *CredentialHandler) Delete(c *fiber.Ctx) error {
	key := c.Params("key")
	if err := h.credentials.Delete(key); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete credential",
		})
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}
