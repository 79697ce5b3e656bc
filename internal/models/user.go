package models

import "time"

// Role controls access to the HTTP surface
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleClient  Role = "client"
)

// User is an account that can trigger workflows. HashedPassword is a
// bcrypt hash and is never serialized.
type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"createdAt"`
}
