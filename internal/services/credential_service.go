package services

import (
	"database/sql"
	"fmt"

	"nodeflow/internal/database"
	"nodeflow/internal/models"
)

// CredentialService provides key/value secret lookup for model
// providers and node scripts.
type CredentialService struct {
	db *database.DB
}

// NewCredentialService creates a new credential service
func NewCredentialService(db *database.DB) *CredentialService {
	return &CredentialService{db: db}
}

// GetByKey returns the credential value for a key, or ok=false when absent
func (s *CredentialService) GetByKey(key string) (string, bool) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// List returns all stored credentials. Values are populated so callers
// inside the process can use them; the model's json tags keep them out
// of API responses.
func (s *CredentialService) List() ([]models.Credential, error) {
	rows, err := s.db.Query(`SELECT id, key, value, created_at FROM credentials ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []models.Credential
	for rows.Next() {
		var cred models.Credential
		if err := rows.Scan(&cred.ID, &cred.Key, &cred.Value, &cred.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// Set stores or replaces a credential
func (s *CredentialService) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO credentials (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to store credential %s: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key
func (s *CredentialService) Delete(key string) error {
	res, err := s.db.Exec(`DELETE FROM credentials WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete credential %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
