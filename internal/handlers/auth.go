package handlers

import (
	"log"

	"nodeflow/internal/models"
	"nodeflow/internal/services"
	"nodeflow/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

// AuthHandler handles login and token refresh
type AuthHandler struct {
	users   *services.UserService
	jwtAuth *auth.JWTAuth
}

func NewAuthHandler(users *services.UserService, jwtAuth *auth.JWTAuth) *AuthHandler {
	return &AuthHandler{users: users, jwtAuth: jwtAuth}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates a user and issues a token pair
// POST /api/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Username == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Username and password are required",
		})
	}

	user, err := h.users.Authenticate(req.Username, req.Password)
	if err != nil {
		log.Printf("⚠️ [AUTH] Login failed for %s", req.Username)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid username or password",
		})
	}

	accessToken, refreshToken, err := h.jwtAuth.GenerateTokens(user.ID, user.Username, string(user.Role))
	if err != nil {
		log.Printf("❌ [AUTH] Token generation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to issue tokens",
		})
	}

	return c.JSON(fiber.Map{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
		"user":         user,
	})
}

// Refresh exchanges a valid refresh token for a new token pair
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Refresh token is required",
		})
	}

	claims, err := h.jwtAuth.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired refresh token",
		})
	}

	accessToken, refreshToken, err := h.jwtAuth.GenerateTokens(claims.UserID, claims.Username, claims.Role)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to issue tokens",
		})
	}

	return c.JSON(fiber.Map{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	})
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Register creates a new account. Admin only.
// POST /api/auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Username == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Username is required",
		})
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	role := models.Role(req.Role)
	switch role {
	case models.RoleAdmin, models.RoleManager, models.RoleClient:
	case "":
		role = models.RoleClient
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown role",
		})
	}

	user, err := h.users.Create(req.Username, req.Password, role)
	if err != nil {
		log.Printf("❌ [AUTH] Failed to create user %s: %v", req.Username, err)
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Failed to create user",
		})
	}

	log.Printf("✅ [AUTH] Created user %s (%s)", user.Username, user.Role)
	return c.Status(fiber.StatusCreated).JSON(user)
}
