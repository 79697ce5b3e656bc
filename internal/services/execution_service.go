package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"nodeflow/internal/database"
	"nodeflow/internal/models"
)

// ExecutionService owns the persistence of Execution and NodeExecution
// records. All engine mutations of shared state funnel through here so
// that partial progress survives a crash.
type ExecutionService struct {
	db *database.DB
}

// NewExecutionService creates a new execution service
func NewExecutionService(db *database.DB) *ExecutionService {
	return &ExecutionService{db: db}
}

// Create inserts a pending execution for a workflow
func (s *ExecutionService) Create(workflowID string) (*models.Execution, error) {
	exec := &models.Execution{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		Status:      models.StatusPending,
		Logs:        []models.LogEntry{},
		RuntimeData: map[string]any{},
		StartedAt:   time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO workflow_executions (id, workflow_id, status, logs, runtime_data, started_at)
		VALUES (?, ?, ?, '[]', '{}', ?)`,
		exec.ID, exec.WorkflowID, exec.Status, exec.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	log.Printf("📝 [EXECUTION] Created execution %s for workflow %s", exec.ID, workflowID)
	return exec, nil
}

// Get loads an execution by id
func (s *ExecutionService) Get(id string) (*models.Execution, error) {
	row := s.db.QueryRow(`
		SELECT id, workflow_id, status, result_summary, logs, runtime_data, started_at, finished_at
		FROM workflow_executions WHERE id = ?`, id)

	var exec models.Execution
	var summary sql.NullString
	var logs, runtimeData string
	var finishedAt sql.NullTime
	err := row.Scan(&exec.ID, &exec.WorkflowID, &exec.Status, &summary, &logs,
		&runtimeData, &exec.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("execution %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load execution %s: %w", id, err)
	}

	exec.ResultSummary = summary.String
	if finishedAt.Valid {
		t := finishedAt.Time
		exec.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(logs), &exec.Logs); err != nil {
		exec.Logs = []models.LogEntry{}
	}
	if err := json.Unmarshal([]byte(runtimeData), &exec.RuntimeData); err != nil {
		exec.RuntimeData = map[string]any{}
	}
	return &exec, nil
}

// UpdateStatus transitions an execution's status
func (s *ExecutionService) UpdateStatus(id string, status models.ExecutionStatus) error {
	_, err := s.db.Exec(`UPDATE workflow_executions SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update execution %s status: %w", id, err)
	}
	return nil
}

// SaveLogs persists the full log buffer. Called on every appended entry
// (flush-on-write) so progress is visible even after a crash mid-run.
func (s *ExecutionService) SaveLogs(id string, logs []models.LogEntry) error {
	data, err := json.Marshal(logs)
	if err != nil {
		return fmt.Errorf("failed to serialize logs: %w", err)
	}
	_, err = s.db.Exec(`UPDATE workflow_executions SET logs = ? WHERE id = ?`, string(data), id)
	if err != nil {
		return fmt.Errorf("failed to save logs for execution %s: %w", id, err)
	}
	return nil
}

// GetRuntimeData returns the execution's live shared runtime data
func (s *ExecutionService) GetRuntimeData(id string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRow(`SELECT runtime_data FROM workflow_executions WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("execution %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load runtime data for %s: %w", id, err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return map[string]any{}, nil
	}
	return data, nil
}

// SetRuntimeData replaces the execution's shared runtime data
func (s *ExecutionService) SetRuntimeData(id string, data map[string]any) error {
	raw, err := json.Marshal(Sanitize(data).(map[string]any))
	if err != nil {
		return fmt.Errorf("failed to serialize runtime data: %w", err)
	}
	_, err = s.db.Exec(`UPDATE workflow_executions SET runtime_data = ? WHERE id = ?`, string(raw), id)
	if err != nil {
		return fmt.Errorf("failed to save runtime data for %s: %w", id, err)
	}
	return nil
}

// MergeRuntimeData overlays the given keys onto the existing runtime
// data (shallow overwrite) and persists the result.
func (s *ExecutionService) MergeRuntimeData(id string, patch map[string]any) error {
	data, err := s.GetRuntimeData(id)
	if err != nil {
		return err
	}
	for k, v := range patch {
		data[k] = v
	}
	return s.SetRuntimeData(id, data)
}

// GetWorkflowData returns the static configuration of the workflow the
// execution belongs to.
func (s *ExecutionService) GetWorkflowData(id string) (map[string]any, error) {
	var raw sql.NullString
	err := s.db.QueryRow(`
		SELECT w.workflow_data FROM workflows w
		JOIN workflow_executions e ON e.workflow_id = w.id
		WHERE e.id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("execution %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow data for %s: %w", id, err)
	}
	if !raw.Valid || raw.String == "" {
		return map[string]any{}, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw.String), &data); err != nil {
		return map[string]any{}, nil
	}
	return data, nil
}

// Finalize sets the terminal status, summary and completion time
func (s *ExecutionService) Finalize(id string, status models.ExecutionStatus, summary string) error {
	_, err := s.db.Exec(`
		UPDATE workflow_executions SET status = ?, result_summary = ?, finished_at = ?
		WHERE id = ?`, status, summary, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finalize execution %s: %w", id, err)
	}
	return nil
}

// SweepOrphans marks executions left pending or running by a prior
// process crash as failed. Returns the number of records swept.
func (s *ExecutionService) SweepOrphans() (int, error) {
	res, err := s.db.Exec(`
		UPDATE workflow_executions
		SET status = ?, result_summary = 'Execution interrupted by process restart', finished_at = ?
		WHERE status IN (?, ?)`,
		models.StatusFailed, time.Now().UTC(), models.StatusPending, models.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep orphaned executions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Printf("🧹 [EXECUTION] Swept %d orphaned execution(s) to failed", n)
	}
	return int(n), nil
}

// CreateNodeExecution records the dispatch of a node within an execution
func (s *ExecutionService) CreateNodeExecution(executionID, nodeID string) (*models.NodeExecution, error) {
	ne := &models.NodeExecution{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		NodeID:      nodeID,
		Status:      models.StatusRunning,
	}
	_, err := s.db.Exec(`
		INSERT INTO node_executions (id, execution_id, node_id, status)
		VALUES (?, ?, ?, ?)`, ne.ID, ne.ExecutionID, ne.NodeID, ne.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to create node execution: %w", err)
	}
	return ne, nil
}

// FinalizeNodeExecution stores a node's terminal status and output or
// error. Output is sanitized so non-serializable values (function
// references from scripts) are stored as their textual representation.
func (s *ExecutionService) FinalizeNodeExecution(id string, status models.ExecutionStatus, output map[string]any, errMsg string) error {
	var outputJSON sql.NullString
	if output != nil {
		raw, err := json.Marshal(Sanitize(output).(map[string]any))
		if err != nil {
			raw = []byte(fmt.Sprintf(`{"output": %q}`, fmt.Sprint(output)))
		}
		outputJSON = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := s.db.Exec(`
		UPDATE node_executions SET status = ?, output = ?, error = ?
		WHERE id = ?`, status, outputJSON, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to finalize node execution %s: %w", id, err)
	}
	return nil
}

// ListNodeExecutions returns all node runs of an execution
func (s *ExecutionService) ListNodeExecutions(executionID string) ([]*models.NodeExecution, error) {
	rows, err := s.db.Query(`
		SELECT id, execution_id, node_id, status, output, error
		FROM node_executions WHERE execution_id = ?`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list node executions: %w", err)
	}
	defer rows.Close()

	var result []*models.NodeExecution
	for rows.Next() {
		var ne models.NodeExecution
		var output, errMsg sql.NullString
		if err := rows.Scan(&ne.ID, &ne.ExecutionID, &ne.NodeID, &ne.Status, &output, &errMsg); err != nil {
			return nil, err
		}
		if output.Valid && output.String != "" {
			_ = json.Unmarshal([]byte(output.String), &ne.Output)
		}
		ne.Error = errMsg.String
		result = append(result, &ne)
	}
	return result, rows.Err()
}

// Sanitize walks a JSON-like value and coerces anything that cannot be
// serialized (callables, opaque host objects) to its textual form.
func Sanitize(v any) any {
	switch val := v.(type) {
	case nil, bool, string, int, int64, float64:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Sanitize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Sanitize(item)
		}
		return out
	default:
		if _, err := json.Marshal(val); err == nil {
			return val
		}
		return fmt.Sprint(val)
	}
}
