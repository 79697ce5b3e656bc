package execution

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"nodeflow/internal/models"
)

// sequentialHandle reports whether a target handle marks an ordinary
// execution-order edge. Anything else is a side-dependency handle that
// delivers data without implying sequence.
func sequentialHandle(handle string) bool {
	return handle == "" || handle == "top"
}

// NodeInvoker executes one node with its assembled inputs and returns
// the node's output mapping.
type NodeInvoker func(ctx context.Context, node models.GraphNode, inputs, handleInputs map[string]any) (map[string]any, error)

// Scheduler walks one workflow graph for one execution. Branch routing
// is data dependent, so order is resolved incrementally off a work
// queue instead of a precomputed topological sort.
type Scheduler struct {
	state  *StateManager
	invoke NodeInvoker

	nodes     map[string]models.GraphNode
	order     []string // node ids in graph declaration order
	edges     []models.GraphEdge
	branching bool // false in fallback mode (no start node)

	outputs  map[string]map[string]any
	failed   map[string]bool
	enqueued map[string]bool
	queue    []string
	waiting  map[string]bool
}

func NewScheduler(graph models.WorkflowGraph, state *StateManager, invoke NodeInvoker) *Scheduler {
	s := &Scheduler{
		state:    state,
		invoke:   invoke,
		nodes:    make(map[string]models.GraphNode, len(graph.Nodes)),
		outputs:  make(map[string]map[string]any),
		failed:   make(map[string]bool),
		enqueued: make(map[string]bool),
		waiting:  make(map[string]bool),
	}
	for _, node := range graph.Nodes {
		s.nodes[node.ID] = node
		s.order = append(s.order, node.ID)
	}
	s.edges = graph.Edges
	s.restrictToClosure()
	return s
}

// restrictToClosure finds the start node and limits execution to its
// expansion-closure: forward along all edges, backward to the providers
// of anything reachable, to fixpoint. A graph without a start node runs
// whole, in plain dependency order with no branch routing.
func (s *Scheduler) restrictToClosure() {
	var startID string
	for _, id := range s.order {
		if s.nodes[id].NodeType == models.StartNodeType {
			startID = id
			break
		}
	}
	if startID == "" {
		s.branching = false
		return
	}
	s.branching = true

	closure := map[string]bool{startID: true}
	for changed := true; changed; {
		changed = false
		for _, edge := range s.edges {
			if closure[edge.Source] && !closure[edge.Target] {
				closure[edge.Target] = true
				changed = true
			}
			if closure[edge.Target] && !closure[edge.Source] {
				closure[edge.Source] = true
				changed = true
			}
		}
	}

	var order []string
	for _, id := range s.order {
		if closure[id] {
			order = append(order, id)
		} else {
			delete(s.nodes, id)
		}
	}
	s.order = order

	var edges []models.GraphEdge
	for _, edge := range s.edges {
		if closure[edge.Source] && closure[edge.Target] {
			edges = append(edges, edge)
		}
	}
	s.edges = edges
}

// Run drives the execution to completion and reports whether every
// executed node succeeded. A stall (no runnable node while some are
// still waiting on side dependencies) fails the run outright.
func (s *Scheduler) Run(ctx context.Context) bool {
	s.seedReady()

	for len(s.queue) > 0 || len(s.waiting) > 0 {
		if len(s.queue) == 0 {
			if !s.promoteWaiting() {
				s.state.Log(fmt.Sprintf("Execution stalled: %d node(s) waiting on dependencies that will never resolve", len(s.waiting)), "", "critical")
				return false
			}
			continue
		}

		id := s.queue[0]
		s.queue = s.queue[1:]
		node := s.nodes[id]

		if !s.sideDepsResolved(id) {
			s.waiting[id] = true
			continue
		}

		s.runNode(ctx, node)
		s.promoteWaiting()
	}

	return len(s.failed) == 0
}

// seedReady enqueues every node with no incoming sequential edge, plus
// the start node itself.
func (s *Scheduler) seedReady() {
	hasSequentialIn := make(map[string]bool)
	for _, edge := range s.edges {
		if sequentialHandle(edge.TargetHandle) {
			hasSequentialIn[edge.Target] = true
		}
	}
	for _, id := range s.order {
		if !hasSequentialIn[id] || s.nodes[id].NodeType == models.StartNodeType {
			s.enqueue(id)
		}
	}
}

func (s *Scheduler) enqueue(id string) {
	if s.enqueued[id] {
		return
	}
	s.enqueued[id] = true
	s.queue = append(s.queue, id)
}

// sideDepsResolved reports whether every side-dependency provider of a
// node has produced output.
func (s *Scheduler) sideDepsResolved(id string) bool {
	for _, edge := range s.edges {
		if edge.Target != id || sequentialHandle(edge.TargetHandle) {
			continue
		}
		if _, done := s.outputs[edge.Source]; !done {
			return false
		}
	}
	return true
}

// promoteWaiting moves newly unblocked nodes back onto the queue and
// reports whether anything moved.
func (s *Scheduler) promoteWaiting() bool {
	progressed := false
	for _, id := range s.order {
		if !s.waiting[id] {
			continue
		}
		if s.sideDepsResolved(id) {
			delete(s.waiting, id)
			s.queue = append(s.queue, id)
			progressed = true
		}
	}
	return progressed
}

func (s *Scheduler) runNode(ctx context.Context, node models.GraphNode) {
	s.state.Log(fmt.Sprintf("Starting node %s (%s)", node.ID, node.NodeType), node.ID, "info")

	record, err := s.state.RecordNodeStart(node.ID)
	if err != nil {
		s.state.Log(fmt.Sprintf("Failed to record node start: %v", err), node.ID, "error")
		s.failed[node.ID] = true
		return
	}

	inputs := s.assembleInputs(node.ID)
	handleInputs := s.assembleHandleInputs(node.ID)

	output, err := s.invoke(ctx, node, inputs, handleInputs)
	if err != nil {
		s.failed[node.ID] = true
		s.state.Log(fmt.Sprintf("Node %s failed: %v", node.ID, err), node.ID, "error")
		if recordErr := s.state.RecordNodeResult(record.ID, models.StatusFailed, nil, err.Error()); recordErr != nil {
			s.state.Log(fmt.Sprintf("Failed to record node result: %v", recordErr), node.ID, "error")
		}
		return
	}
	if output == nil {
		output = map[string]any{}
	}

	s.outputs[node.ID] = output
	if recordErr := s.state.RecordNodeResult(record.ID, models.StatusSuccess, output, ""); recordErr != nil {
		s.state.Log(fmt.Sprintf("Failed to record node result: %v", recordErr), node.ID, "error")
	}
	s.state.Log(fmt.Sprintf("Node %s completed", node.ID), node.ID, "info")

	s.fanOut(node.ID, output)
}

// fanOut enqueues downstream sequential targets, honoring an explicit
// branch selection on the node's output. Selected 0 halts the branch;
// a positive selection fires only the matching "than_<n>" edge.
func (s *Scheduler) fanOut(id string, output map[string]any) {
	branch := parseBranch(output)
	if branch != nil && s.branching && branch.Selected == 0 {
		s.state.Log(fmt.Sprintf("Node %s halted its branch", id), id, "info")
		return
	}
	for _, edge := range s.edges {
		if edge.Source != id || !sequentialHandle(edge.TargetHandle) {
			continue
		}
		if branch != nil && s.branching {
			if edge.SourceHandle != fmt.Sprintf("than_%d", branch.Selected) {
				continue
			}
		}
		s.enqueue(edge.Target)
	}
}

// assembleInputs merges the full output mapping of every completed
// sequential upstream, in edge declaration order.
func (s *Scheduler) assembleInputs(id string) map[string]any {
	inputs := make(map[string]any)
	for _, edge := range s.edges {
		if edge.Target != id || !sequentialHandle(edge.TargetHandle) {
			continue
		}
		for key, value := range s.outputs[edge.Source] {
			inputs[key] = value
		}
	}
	return inputs
}

// assembleHandleInputs builds the handle-keyed side-input bag. Multiple
// edges delivering to one handle accumulate into a list; a lone edge
// delivers its value bare.
func (s *Scheduler) assembleHandleInputs(id string) map[string]any {
	collected := make(map[string][]any)
	for _, edge := range s.edges {
		if edge.Target != id || sequentialHandle(edge.TargetHandle) {
			continue
		}
		output, done := s.outputs[edge.Source]
		if !done {
			continue
		}
		handle := edge.TargetHandle
		collected[handle] = append(collected[handle], sideValue(edge, output))
	}
	bag := make(map[string]any, len(collected))
	for handle, values := range collected {
		if len(values) == 1 {
			bag[handle] = values[0]
		} else {
			bag[handle] = values
		}
	}
	return bag
}

// sideValue picks what a side edge delivers: the output key named by the
// source handle when present, otherwise the whole output mapping.
func sideValue(edge models.GraphEdge, output map[string]any) any {
	if edge.SourceHandle != "" {
		if value, ok := output[edge.SourceHandle]; ok {
			return value
		}
	}
	return output
}

// parseBranch reads an explicit branch selection off a node's output.
// The pair is only honored when the ceiling is positive and the
// selection is within it.
func parseBranch(output map[string]any) *models.BranchSelection {
	raw, ok := output["branch"]
	if !ok {
		return nil
	}
	mapping, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	selected, okSel := asInt(mapping["selected"])
	max, okMax := asInt(mapping["max"])
	if !okSel || !okMax || max <= 0 || selected < 0 || selected > max {
		return nil
	}
	return &models.BranchSelection{Selected: selected, Max: max}
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return i, true
		}
	}
	return 0, false
}
