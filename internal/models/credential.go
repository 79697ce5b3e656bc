package models

import "time"

// Credential is a stored key/value secret (API keys for model
// providers). Value is never serialized to API responses.
type Credential struct {
	ID        int       `json:"id"`
	Key       string    `json:"key"`
	Value     string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}
