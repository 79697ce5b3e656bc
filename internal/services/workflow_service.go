package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nodeflow/internal/database"
	"nodeflow/internal/models"
)

// WorkflowService reads and writes workflow definitions
type WorkflowService struct {
	db *database.DB
}

// NewWorkflowService creates a new workflow service
func NewWorkflowService(db *database.DB) *WorkflowService {
	return &WorkflowService{db: db}
}

// Get returns the workflow with the given id
func (s *WorkflowService) Get(id string) (*models.Workflow, error) {
	row := s.db.QueryRow(`
		SELECT id, name, owner_id, graph, workflow_data, schedule, status, created_at, updated_at
		FROM workflows WHERE id = ?`, id)

	var wf models.Workflow
	var graph string
	var workflowData, schedule sql.NullString
	var updatedAt sql.NullTime
	err := row.Scan(&wf.ID, &wf.Name, &wf.OwnerID, &graph, &workflowData, &schedule,
		&wf.Status, &wf.CreatedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workflow %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(graph), &wf.Graph); err != nil {
		return nil, fmt.Errorf("workflow %s has malformed graph: %w", id, err)
	}
	if workflowData.Valid && workflowData.String != "" {
		if err := json.Unmarshal([]byte(workflowData.String), &wf.WorkflowData); err != nil {
			wf.WorkflowData = map[string]any{}
		}
	}
	wf.Schedule = schedule.String
	if updatedAt.Valid {
		wf.UpdatedAt = updatedAt.Time
	}
	return &wf, nil
}

// ListScheduled returns workflows that carry a cron schedule
func (s *WorkflowService) ListScheduled() ([]*models.Workflow, error) {
	rows, err := s.db.Query(`SELECT id FROM workflows WHERE schedule IS NOT NULL AND schedule != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled workflows: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var result []*models.Workflow
	for _, id := range ids {
		wf, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		result = append(result, wf)
	}
	return result, nil
}

// Create stores a new workflow and returns it with its generated id
func (s *WorkflowService) Create(wf *models.Workflow) (*models.Workflow, error) {
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	if wf.Status == "" {
		wf.Status = models.StatusDraft
	}
	wf.CreatedAt = time.Now().UTC()

	graph, err := json.Marshal(wf.Graph)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize graph: %w", err)
	}
	workflowData, _ := json.Marshal(wf.WorkflowData)

	_, err = s.db.Exec(`
		INSERT INTO workflows (id, name, owner_id, graph, workflow_data, schedule, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.Name, wf.OwnerID, string(graph), string(workflowData), wf.Schedule, wf.Status, wf.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}
	return wf, nil
}

// UpdateGraph replaces a workflow's graph and static configuration
func (s *WorkflowService) UpdateGraph(id string, graph models.WorkflowGraph, workflowData map[string]any) error {
	graphJSON, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("failed to serialize graph: %w", err)
	}
	dataJSON, _ := json.Marshal(workflowData)

	res, err := s.db.Exec(`
		UPDATE workflows SET graph = ?, workflow_data = ?, updated_at = ?
		WHERE id = ?`, string(graphJSON), string(dataJSON), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update workflow %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("workflow %s not found", id)
	}
	return nil
}
