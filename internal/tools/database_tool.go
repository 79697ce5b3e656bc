package tools

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const maxSelectRows = 50

var tableRefPattern = regexp.MustCompile(`(?i)(?:from|join|into|update)\s+([a-zA-Z0-9_]+)`)

// NewDatabaseTool creates the database_query tool. Policy maps table
// name to capability: "R" (read), "W" (write) or "RW". Only SELECT,
// INSERT, UPDATE and DELETE statements are permitted, and every table
// referenced by the statement must carry the matching capability.
func NewDatabaseTool(db *sql.DB, policy map[string]string) *Tool {
	normalized := make(map[string]string, len(policy))
	for table, caps := range policy {
		normalized[strings.ToLower(table)] = strings.ToUpper(caps)
	}

	return &Tool{
		Name:        "database_query",
		Description: "Executes a SQL query against the allowed tables. SELECT results are capped at 50 rows.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "SQL statement (SELECT, INSERT, UPDATE or DELETE)",
				},
			},
			"required": []string{"query"},
		},
		Execute: func(args map[string]any) (string, error) {
			query, ok := stringArg(args, "query", "sql")
			if !ok || strings.TrimSpace(query) == "" {
				return "Error: Database query is empty.", nil
			}
			return executeDatabaseQuery(db, normalized, query)
		},
	}
}

func executeDatabaseQuery(db *sql.DB, policy map[string]string, query string) (string, error) {
	query = strings.TrimSpace(query)
	lower := strings.ToLower(query)

	isRead := strings.HasPrefix(lower, "select")
	isWrite := strings.HasPrefix(lower, "insert") ||
		strings.HasPrefix(lower, "update") ||
		strings.HasPrefix(lower, "delete")

	if !isRead && !isWrite {
		return "Security Error: Only SELECT, INSERT, UPDATE, and DELETE queries are permitted.", nil
	}

	tables := map[string]bool{}
	for _, match := range tableRefPattern.FindAllStringSubmatch(lower, -1) {
		tables[match[1]] = true
	}
	if len(tables) == 0 {
		return "Error: No valid tables found in the query. Remember to use standard SQL.", nil
	}

	for table := range tables {
		caps, allowed := policy[table]
		if !allowed {
			return fmt.Sprintf("Security Error: Table '%s' is not in the allowed tables list.", table), nil
		}
		if isRead && !strings.Contains(caps, "R") {
			return fmt.Sprintf("Security Error: Read access (SELECT) to table '%s' is not allowed.", table), nil
		}
		if isWrite && !strings.Contains(caps, "W") {
			return fmt.Sprintf("Security Error: Write access (INSERT/UPDATE/DELETE) to table '%s' is not allowed.", table), nil
		}
	}

	if isWrite {
		return executeWrite(db, query)
	}
	return executeSelect(db, query)
}

// executeWrite runs the statement inside a transaction so a failed
// write is rolled back.
func executeWrite(db *sql.DB, query string) (string, error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Sprintf("Database Error during execution: %v", err), nil
	}

	res, err := tx.Exec(query)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Sprintf("Database Error during execution: %v", err), nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Sprintf("Database Error during execution: %v", err), nil
	}

	affected, _ := res.RowsAffected()
	return fmt.Sprintf("Query executed successfully. Affected rows: %d", affected), nil
}

func executeSelect(db *sql.DB, query string) (string, error) {
	rows, err := db.Query(query)
	if err != nil {
		return fmt.Sprintf("Database Error during execution: %v", err), nil
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Sprintf("Database Error during execution: %v", err), nil
	}

	var data []map[string]any
	var truncated int
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return fmt.Sprintf("Database Error during execution: %v", err), nil
		}

		if len(data) >= maxSelectRows {
			truncated++
			continue
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return fmt.Sprintf("Database Error during execution: %v", err), nil
	}

	if len(data) == 0 {
		return "Query executed successfully, but returned 0 rows.", nil
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("Database Error during execution: %v", err), nil
	}
	if truncated > 0 {
		return fmt.Sprintf("%s\n... (Truncated %d more rows)", encoded, truncated), nil
	}
	return string(encoded), nil
}
