package execution

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"nodeflow/internal/database"
	"nodeflow/internal/models"
	"nodeflow/internal/services"
)

type testEnv struct {
	executions *services.ExecutionService
	state      *StateManager
}

func newTestEnv(t *testing.T, graph models.WorkflowGraph, workflowData map[string]any) *testEnv {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "exec.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Initialize(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	workflows := services.NewWorkflowService(db)
	executions := services.NewExecutionService(db)

	wf, err := workflows.Create(&models.Workflow{
		Name:         "test workflow",
		Graph:        graph,
		WorkflowData: workflowData,
	})
	if err != nil {
		t.Fatalf("failed to create workflow: %v", err)
	}
	exec, err := executions.Create(wf.ID)
	if err != nil {
		t.Fatalf("failed to create execution: %v", err)
	}

	state := NewStateManager(executions, exec)
	if err := state.Start(); err != nil {
		t.Fatalf("failed to start execution: %v", err)
	}
	return &testEnv{executions: executions, state: state}
}

// recordingInvoker returns scripted outputs per node id and records the
// order nodes ran in and the inputs each saw.
type recordingInvoker struct {
	outputs      map[string]map[string]any
	failures     map[string]bool
	ran          []string
	inputs       map[string]map[string]any
	handleInputs map[string]map[string]any
}

func newRecordingInvoker() *recordingInvoker {
	return &recordingInvoker{
		outputs:      map[string]map[string]any{},
		failures:     map[string]bool{},
		inputs:       map[string]map[string]any{},
		handleInputs: map[string]map[string]any{},
	}
}

func (r *recordingInvoker) invoke(ctx context.Context, node models.GraphNode, inputs, handleInputs map[string]any) (map[string]any, error) {
	r.ran = append(r.ran, node.ID)
	r.inputs[node.ID] = inputs
	r.handleInputs[node.ID] = handleInputs
	if r.failures[node.ID] {
		return nil, fmt.Errorf("scripted failure")
	}
	if out, ok := r.outputs[node.ID]; ok {
		return out, nil
	}
	return map[string]any{"from": node.ID}, nil
}

func (r *recordingInvoker) didRun(id string) bool {
	for _, ran := range r.ran {
		if ran == id {
			return true
		}
	}
	return false
}

func startNode(id string) models.GraphNode {
	return models.GraphNode{ID: id, NodeType: models.StartNodeType}
}

func taskNode(id string) models.GraphNode {
	return models.GraphNode{ID: id, NodeType: "Task"}
}

func TestBranchSelectionRoutesSingleEdge(t *testing.T) {
	graph := models.WorkflowGraph{
		Nodes: []models.GraphNode{startNode("start"), taskNode("A"), taskNode("B"), taskNode("C")},
		Edges: []models.GraphEdge{
			{Source: "start", Target: "A"},
			{Source: "A", Target: "B", SourceHandle: "than_1"},
			{Source: "A", Target: "C", SourceHandle: "than_2"},
		},
	}
	env := newTestEnv(t, graph, nil)
	inv := newRecordingInvoker()
	inv.outputs["A"] = map[string]any{
		"branch": map[string]any{"selected": int64(1), "max": int64(2)},
	}

	ok := NewScheduler(graph, env.state, inv.invoke).Run(context.Background())
	if !ok {
		t.Fatal("run reported failure")
	}
	if !inv.didRun("B") {
		t.Error("selected branch B never ran")
	}
	if inv.didRun("C") {
		t.Error("unselected branch C ran")
	}
}

func TestBranchZeroHaltsAllSequentialEdges(t *testing.T) {
	graph := models.WorkflowGraph{
		Nodes: []models.GraphNode{startNode("start"), taskNode("A"), taskNode("B"), taskNode("C")},
		Edges: []models.GraphEdge{
			{Source: "start", Target: "A"},
			{Source: "A", Target: "B", SourceHandle: "than_1"},
			{Source: "A", Target: "C", SourceHandle: "than_2"},
		},
	}
	env := newTestEnv(t, graph, nil)
	inv := newRecordingInvoker()
	inv.outputs["A"] = map[string]any{
		"branch": map[string]any{"selected": int64(0), "max": int64(2)},
	}

	ok := NewScheduler(graph, env.state, inv.invoke).Run(context.Background())
	if !ok {
		t.Fatal("run reported failure")
	}
	if inv.didRun("B") || inv.didRun("C") {
		t.Errorf("halted branch still ran nodes: %v", inv.ran)
	}
}

func TestNoBranchFansOutAllSequentialEdges(t *testing.T) {
	graph := models.WorkflowGraph{
		Nodes: []models.GraphNode{startNode("start"), taskNode("B"), taskNode("C")},
		Edges: []models.GraphEdge{
			{Source: "start", Target: "B"},
			{Source: "start", Target: "C"},
		},
	}
	env := newTestEnv(t, graph, nil)
	inv := newRecordingInvoker()

	ok := NewScheduler(graph, env.state, inv.invoke).Run(context.Background())
	if !ok {
		t.Fatal("run reported failure")
	}
	if !inv.didRun("B") || !inv.didRun("C") {
		t.Errorf("fan-out incomplete, ran: %v", inv.ran)
	}
}

func TestSideDependencyDefersExecution(t *testing.T) {
	// D is sequentially downstream of start but must wait for side
	// provider E, which hangs off its own sequential chain.
	graph := models.WorkflowGraph{
		Nodes: []models.GraphNode{startNode("start"), taskNode("E"), taskNode("D")},
		Edges: []models.GraphEdge{
			{Source: "start", Target: "D"},
			{Source: "start", Target: "E"},
			{Source: "E", Target: "D", TargetHandle: "context"},
		},
	}
	env := newTestEnv(t, graph, nil)
	inv := newRecordingInvoker()
	inv.outputs["E"] = map[string]any{"payload": "from-E"}

	ok := NewScheduler(graph, env.state, inv.invoke).Run(context.Background())
	if !ok {
		t.Fatal("run reported failure")
	}

	var posD, posE int
	for i, id := range inv.ran {
		switch id {
		case "D":
			posD = i
		case "E":
			posE = i
		}
	}
	if posD < posE {
		t.Errorf("D ran before its side provider E: %v", inv.ran)
	}
	if inv.handleInputs["D"]["context"] == nil {
		t.Errorf("side input never delivered: %v", inv.handleInputs["D"])
	}
}

func TestSideInputsAccumulateIntoList(t *testing.T) {
	graph := models.WorkflowGraph{
		Nodes: []models.GraphNode{startNode("start"), taskNode("P1"), taskNode("P2"), taskNode("D")},
		Edges: []models.GraphEdge{
			{Source: "start", Target: "P1"},
			{Source: "start", Target: "P2"},
			{Source: "start", Target: "D"},
			{Source: "P1", Target: "D", SourceHandle: "value", TargetHandle: "item"},
			{Source: "P2", Target: "D", SourceHandle: "value", TargetHandle: "item"},
		},
	}
	env := newTestEnv(t, graph, nil)
	inv := newRecordingInvoker()
	inv.outputs["P1"] = map[string]any{"value": "one"}
	inv.outputs["P2"] = map[string]any{"value": "two"}

	ok := NewScheduler(graph, env.state, inv.invoke).Run(context.Background())
	if !ok {
		t.Fatal("run reported failure")
	}

	items, ok2 := inv.handleInputs["D"]["item"].([]any)
	if !ok2 || len(items) != 2 {
		t.Fatalf("item = %v, want list of 2", inv.handleInputs["D"]["item"])
	}
}

func TestStallMarksRunFailed(t *testing.T) {
	// W waits on a side edge from U, but U is outside any sequential
	// path and never queued, so the run must stall.
	graph := models.WorkflowGraph{
		Nodes: []models.GraphNode{startNode("start"), taskNode("W"), taskNode("U")},
		Edges: []models.GraphEdge{
			{Source: "start", Target: "W"},
			{Source: "W", Target: "U"},
			{Source: "U", Target: "W", TargetHandle: "loop"},
		},
	}
	env := newTestEnv(t, graph, nil)
	inv := newRecordingInvoker()

	ok := NewScheduler(graph, env.state, inv.invoke).Run(context.Background())
	if ok {
		t.Fatal("stalled run reported success")
	}

	exec, err := env.executions.Get(env.state.ExecutionID())
	if err != nil {
		t.Fatalf("failed to reload execution: %v", err)
	}
	var critical bool
	for _, entry := range exec.Logs {
		if entry.Level == "critical" && strings.Contains(entry.Message, "stalled") {
			critical = true
		}
	}
	if !critical {
		t.Error("stall never logged as critical")
	}
}

func TestFailedNodePrunesSequentialDownstream(t *testing.T) {
	graph := models.WorkflowGraph{
		Nodes: []models.GraphNode{startNode("start"), taskNode("A"), taskNode("B"), taskNode("X")},
		Edges: []models.GraphEdge{
			{Source: "start", Target: "A"},
			{Source: "start", Target: "X"},
			{Source: "A", Target: "B"},
		},
	}
	env := newTestEnv(t, graph, nil)
	inv := newRecordingInvoker()
	inv.failures["A"] = true

	ok := NewScheduler(graph, env.state, inv.invoke).Run(context.Background())
	if ok {
		t.Fatal("run with a failed node reported success")
	}
	if inv.didRun("B") {
		t.Error("downstream of failed node still ran")
	}
	if !inv.didRun("X") {
		t.Error("unrelated branch was pruned")
	}
}

func TestExpansionClosureExcludesDisconnectedNodes(t *testing.T) {
	graph := models.WorkflowGraph{
		Nodes: []models.GraphNode{startNode("start"), taskNode("A"), taskNode("orphan")},
		Edges: []models.GraphEdge{
			{Source: "start", Target: "A"},
		},
	}
	env := newTestEnv(t, graph, nil)
	inv := newRecordingInvoker()

	ok := NewScheduler(graph, env.state, inv.invoke).Run(context.Background())
	if !ok {
		t.Fatal("run reported failure")
	}
	if inv.didRun("orphan") {
		t.Error("node outside the start closure ran")
	}
}

func TestSequentialInputsMergeUpstreamOutputs(t *testing.T) {
	graph := models.WorkflowGraph{
		Nodes: []models.GraphNode{startNode("start"), taskNode("A"), taskNode("B"), taskNode("C")},
		Edges: []models.GraphEdge{
			{Source: "start", Target: "A"},
			{Source: "start", Target: "B"},
			{Source: "A", Target: "C"},
			{Source: "B", Target: "C"},
		},
	}
	env := newTestEnv(t, graph, nil)
	inv := newRecordingInvoker()
	inv.outputs["A"] = map[string]any{"alpha": 1}
	inv.outputs["B"] = map[string]any{"beta": 2}

	ok := NewScheduler(graph, env.state, inv.invoke).Run(context.Background())
	if !ok {
		t.Fatal("run reported failure")
	}
	in := inv.inputs["C"]
	if in["alpha"] == nil || in["beta"] == nil {
		t.Errorf("merged inputs incomplete: %v", in)
	}
}
