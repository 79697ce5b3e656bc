package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// New opens the SQLite database at the given path
func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite handles one writer at a time; keep the pool small
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ SQLite database connected")

	return &DB{db}, nil
}

// Initialize creates all required tables
func (db *DB) Initialize() error {
	log.Println("🔍 Checking database schema...")

	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			hashed_password TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'client',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT UNIQUE NOT NULL,
			value TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS node_types (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			version TEXT NOT NULL DEFAULT '1.0',
			description TEXT,
			script TEXT NOT NULL,
			input_schema TEXT NOT NULL DEFAULT '{}',
			output_schema TEXT NOT NULL DEFAULT '{}',
			parameters TEXT NOT NULL DEFAULT '[]',
			category TEXT,
			is_async INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			graph TEXT NOT NULL DEFAULT '{"nodes":[],"edges":[]}',
			workflow_data TEXT,
			schedule TEXT,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL REFERENCES workflows(id),
			status TEXT NOT NULL DEFAULT 'pending',
			result_summary TEXT,
			logs TEXT NOT NULL DEFAULT '[]',
			runtime_data TEXT NOT NULL DEFAULT '{}',
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			finished_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS node_executions (
			id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL REFERENCES workflow_executions(id),
			node_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			output TEXT,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_workflow ON workflow_executions(workflow_id)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_status ON workflow_executions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_node_executions_execution ON node_executions(execution_id)`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	log.Println("✅ Database initialized successfully")
	return nil
}
