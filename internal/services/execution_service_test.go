package services

import (
	"path/filepath"
	"strings"
	"testing"

	"nodeflow/internal/database"
	"nodeflow/internal/models"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Initialize(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return db
}

func createTestExecution(t *testing.T, db *database.DB) (*ExecutionService, *models.Execution) {
	t.Helper()
	workflows := NewWorkflowService(db)
	wf, err := workflows.Create(&models.Workflow{Name: "svc test"})
	if err != nil {
		t.Fatalf("failed to create workflow: %v", err)
	}
	executions := NewExecutionService(db)
	exec, err := executions.Create(wf.ID)
	if err != nil {
		t.Fatalf("failed to create execution: %v", err)
	}
	return executions, exec
}

func TestMergeRuntimeDataShallowOverwrite(t *testing.T) {
	executions, exec := createTestExecution(t, newTestDB(t))

	if err := executions.MergeRuntimeData(exec.ID, map[string]any{"a": 1, "b": "keep"}); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if err := executions.MergeRuntimeData(exec.ID, map[string]any{"a": 2, "c": true}); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	data, err := executions.GetRuntimeData(exec.ID)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if data["a"] != float64(2) {
		t.Errorf("a = %v, want overwritten value", data["a"])
	}
	if data["b"] != "keep" {
		t.Errorf("b = %v, want untouched value", data["b"])
	}
	if data["c"] != true {
		t.Errorf("c = %v, want merged value", data["c"])
	}
}

func TestMergeRuntimeDataIdempotent(t *testing.T) {
	executions, exec := createTestExecution(t, newTestDB(t))

	patch := map[string]any{"stage": "extract", "count": 3}
	if err := executions.MergeRuntimeData(exec.ID, patch); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	first, err := executions.GetRuntimeData(exec.ID)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if err := executions.MergeRuntimeData(exec.ID, patch); err != nil {
		t.Fatalf("repeat merge failed: %v", err)
	}
	second, err := executions.GetRuntimeData(exec.ID)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("repeat merge changed key count: %d vs %d", len(first), len(second))
	}
	for k, v := range first {
		if second[k] != v {
			t.Errorf("key %q changed after repeat merge: %v vs %v", k, v, second[k])
		}
	}
}

func TestSweepOrphansFailsNonTerminalExecutions(t *testing.T) {
	db := newTestDB(t)
	executions, pending := createTestExecution(t, db)

	running, err := executions.Create(pending.WorkflowID)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := executions.UpdateStatus(running.ID, models.StatusRunning); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	finished, err := executions.Create(pending.WorkflowID)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := executions.Finalize(finished.ID, models.StatusSuccess, "done"); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	swept, err := executions.SweepOrphans()
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if swept != 2 {
		t.Errorf("swept = %d, want 2", swept)
	}

	for _, id := range []string{pending.ID, running.ID} {
		exec, err := executions.Get(id)
		if err != nil {
			t.Fatalf("reload failed: %v", err)
		}
		if exec.Status != models.StatusFailed {
			t.Errorf("execution %s status = %s, want failed", id, exec.Status)
		}
		if !strings.Contains(exec.ResultSummary, "interrupted") {
			t.Errorf("summary = %q, want interruption notice", exec.ResultSummary)
		}
	}

	exec, err := executions.Get(finished.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if exec.Status != models.StatusSuccess {
		t.Errorf("terminal execution was swept to %s", exec.Status)
	}
}

func TestFinalizeNodeExecutionSanitizesOutput(t *testing.T) {
	executions, exec := createTestExecution(t, newTestDB(t))

	node, err := executions.CreateNodeExecution(exec.ID, "node-1")
	if err != nil {
		t.Fatalf("create node execution failed: %v", err)
	}

	output := map[string]any{
		"text":     "plain",
		"callback": func() {}, // not serializable, must be coerced to text
	}
	if err := executions.FinalizeNodeExecution(node.ID, models.StatusSuccess, output, ""); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	records, err := executions.ListNodeExecutions(exec.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].Output["text"] != "plain" {
		t.Errorf("text = %v", records[0].Output["text"])
	}
	if _, ok := records[0].Output["callback"].(string); !ok {
		t.Errorf("callback = %T, want textual representation", records[0].Output["callback"])
	}
}

func TestSanitizeCoercesNonSerializableValues(t *testing.T) {
	value := Sanitize(map[string]any{
		"fn":   func() {},
		"nest": map[string]any{"ch": make(chan int)},
		"ok":   "text",
	})
	m, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("Sanitize returned %T", value)
	}
	if _, ok := m["fn"].(string); !ok {
		t.Errorf("fn = %T, want string", m["fn"])
	}
	nest := m["nest"].(map[string]any)
	if _, ok := nest["ch"].(string); !ok {
		t.Errorf("nested channel = %T, want string", nest["ch"])
	}
	if m["ok"] != "text" {
		t.Errorf("ok = %v", m["ok"])
	}
}
