package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"nodeflow/internal/database"
	"nodeflow/internal/models"
)

// UserService manages the accounts that back the auth middleware
type UserService struct {
	db *database.DB
}

// NewUserService creates a new user service
func NewUserService(db *database.DB) *UserService {
	return &UserService{db: db}
}

// Create stores a new user with a bcrypt-hashed password
func (s *UserService) Create(username, password string, role models.Role) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:             uuid.New().String(),
		Username:       username,
		HashedPassword: string(hash),
		Role:           role,
		CreatedAt:      time.Now().UTC(),
	}
	_, err = s.db.Exec(`
		INSERT INTO users (id, username, hashed_password, role, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.HashedPassword, user.Role, user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", username, err)
	}
	return user, nil
}

// GetByUsername loads a user by username
func (s *UserService) GetByUsername(username string) (*models.User, error) {
	row := s.db.QueryRow(`
		SELECT id, username, hashed_password, role, created_at
		FROM users WHERE username = ?`, username)

	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.HashedPassword, &user.Role, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s not found", username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", username, err)
	}
	return &user, nil
}

// Authenticate verifies a username/password pair
func (s *UserService) Authenticate(username, password string) (*models.User, error) {
	user, err := s.GetByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	return user, nil
}
