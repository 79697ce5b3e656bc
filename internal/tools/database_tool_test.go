package tools

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "tools.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, item TEXT)`,
		`CREATE TABLE audit_log (id INTEGER PRIMARY KEY, entry TEXT)`,
		`INSERT INTO audit_log (entry) VALUES ('created')`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to prepare schema: %v", err)
		}
	}
	return db
}

func testPolicy() map[string]string {
	return map[string]string{
		"orders":    "RW",
		"audit_log": "R",
	}
}

func TestDatabaseToolRejectsUnknownTable(t *testing.T) {
	db := openTestDB(t)
	got, err := executeDatabaseQuery(db, testPolicy(), "SELECT * FROM secrets")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "Security Error") || !strings.Contains(got, "secrets") {
		t.Errorf("expected security error naming the table, got %q", got)
	}
}

func TestDatabaseToolRejectsWriteToReadOnlyTable(t *testing.T) {
	db := openTestDB(t)
	got, err := executeDatabaseQuery(db, testPolicy(), "INSERT INTO audit_log (entry) VALUES ('x')")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "Write access") {
		t.Errorf("expected write-access rejection, got %q", got)
	}

	// The rejected insert must not have reached the table
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 row in audit_log, found %d", count)
	}
}

func TestDatabaseToolCommitsAllowedWrite(t *testing.T) {
	db := openTestDB(t)
	got, err := executeDatabaseQuery(db, testPolicy(), "INSERT INTO orders (item) VALUES ('widget')")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "Affected rows: 1") {
		t.Errorf("expected affected-row report, got %q", got)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM orders").Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("insert was not committed, found %d rows", count)
	}
}

func TestDatabaseToolSelectTruncation(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < maxSelectRows+10; i++ {
		if _, err := db.Exec("INSERT INTO orders (item) VALUES ('bulk')"); err != nil {
			t.Fatalf("seed insert failed: %v", err)
		}
	}

	got, err := executeDatabaseQuery(db, testPolicy(), "SELECT * FROM orders")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "Truncated 10 more rows") {
		t.Errorf("expected truncation notice, got tail %q", got[len(got)-80:])
	}
}

func TestDatabaseToolRejectsNonCRUDStatements(t *testing.T) {
	db := openTestDB(t)
	got, err := executeDatabaseQuery(db, testPolicy(), "DROP TABLE orders")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "Security Error") {
		t.Errorf("expected statement rejection, got %q", got)
	}
}
