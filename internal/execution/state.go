// Package execution runs workflows: it owns the per-run state manager,
// the graph scheduler, and the capability namespace injected into node
// scripts.
package execution

import (
	"log/slog"
	"time"

	"nodeflow/internal/logging"
	"nodeflow/internal/models"
	"nodeflow/internal/services"
)

// StateManager is the single authority for one execution's state: status
// transitions, node records, runtime data, and the append-only log. One
// instance per execution, used from a single goroutine.
type StateManager struct {
	executions   *services.ExecutionService
	execution    *models.Execution
	workflowData map[string]any
	logs         []models.LogEntry
	logger       *slog.Logger
}

func NewStateManager(executions *services.ExecutionService, exec *models.Execution) *StateManager {
	return &StateManager{
		executions: executions,
		execution:  exec,
		logs:       append([]models.LogEntry(nil), exec.Logs...),
		logger:     logging.WithExecution(exec.ID, exec.WorkflowID),
	}
}

func (m *StateManager) ExecutionID() string { return m.execution.ID }

// Start transitions the execution to running and seeds runtime data from
// the workflow's static configuration. Seeding only happens when runtime
// data is empty so a resumed run keeps its accumulated state.
func (m *StateManager) Start() error {
	if err := m.executions.UpdateStatus(m.execution.ID, models.StatusRunning); err != nil {
		return err
	}
	m.execution.Status = models.StatusRunning

	workflowData, err := m.executions.GetWorkflowData(m.execution.ID)
	if err != nil {
		return err
	}
	m.workflowData = workflowData

	runtimeData, err := m.executions.GetRuntimeData(m.execution.ID)
	if err != nil {
		return err
	}
	if len(runtimeData) == 0 && len(workflowData) > 0 {
		if err := m.executions.SetRuntimeData(m.execution.ID, workflowData); err != nil {
			return err
		}
		m.logger.Info("seeded runtime data from workflow configuration", "keys", len(workflowData))
	}
	return nil
}

// WorkflowData returns the execution's static configuration snapshot
func (m *StateManager) WorkflowData() map[string]any {
	return m.workflowData
}

func (m *StateManager) RuntimeData() (map[string]any, error) {
	return m.executions.GetRuntimeData(m.execution.ID)
}

func (m *StateManager) MergeRuntimeData(patch map[string]any) error {
	return m.executions.MergeRuntimeData(m.execution.ID, patch)
}

// Log appends a structured entry and flushes the whole buffer. Flushing
// on every call keeps partial progress visible after a crash; a persist
// failure is reported but never interrupts the run.
func (m *StateManager) Log(message, nodeID, level string) {
	if level == "" {
		level = "info"
	}
	m.logs = append(m.logs, models.LogEntry{
		Timestamp: time.Now(),
		Message:   message,
		NodeID:    nodeID,
		Level:     level,
	})
	if err := m.executions.SaveLogs(m.execution.ID, m.logs); err != nil {
		m.logger.Error("failed to persist execution logs", "error", err)
	}
}

func (m *StateManager) RecordNodeStart(nodeID string) (*models.NodeExecution, error) {
	return m.executions.CreateNodeExecution(m.execution.ID, nodeID)
}

func (m *StateManager) RecordNodeResult(nodeExecID string, status models.ExecutionStatus, output map[string]any, errMsg string) error {
	return m.executions.FinalizeNodeExecution(nodeExecID, status, output, errMsg)
}

// Finish stamps the terminal status and summary
func (m *StateManager) Finish(allNodesSucceeded bool) error {
	status := models.StatusSuccess
	summary := "Workflow completed successfully"
	if !allNodesSucceeded {
		status = models.StatusFailed
		summary = "Workflow finished with errors, see execution logs"
	}
	if err := m.executions.Finalize(m.execution.ID, status, summary); err != nil {
		return err
	}
	m.execution.Status = status
	m.logger.Info("execution finished", "status", string(status))
	return nil
}
