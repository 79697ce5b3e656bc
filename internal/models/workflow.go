package models

import "time"

// ExecutionStatus is the lifecycle state of a workflow or node run
type ExecutionStatus string

const (
	StatusDraft   ExecutionStatus = "draft"
	StatusPending ExecutionStatus = "pending"
	StatusRunning ExecutionStatus = "running"
	StatusSuccess ExecutionStatus = "success"
	StatusFailed  ExecutionStatus = "failed"
)

// Terminal reports whether the status is a final state
func (s ExecutionStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// GraphNode is one node placed on a workflow canvas.
// NodeType references a NodeTypeDefinition by name; Params overrides
// the node type's declared parameter defaults.
type GraphNode struct {
	ID       string         `json:"id"`
	NodeType string         `json:"nodeType"`
	Params   map[string]any `json:"params,omitempty"`
}

// GraphEdge connects two nodes. SourceHandle and TargetHandle carry the
// routing conventions: a target handle of "" or "top" is a sequential
// edge, anything else is a side-dependency handle; a source handle of
// "than_<n>" marks a conditional branch output.
type GraphEdge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// WorkflowGraph is the editable graph structure of a workflow
type WorkflowGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Workflow is a stored workflow definition
type Workflow struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	OwnerID      string          `json:"ownerId"`
	Graph        WorkflowGraph   `json:"graph"`
	WorkflowData map[string]any  `json:"workflowData,omitempty"` // static configuration, seeds runtime data
	Schedule     string          `json:"schedule,omitempty"`     // optional cron expression
	Status       ExecutionStatus `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// LogEntry is one structured line in an execution's log stream
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	NodeID    string    `json:"nodeId,omitempty"` // empty for execution-wide entries
	Level     string    `json:"level"`            // info, warning, error, critical, system
}

// Execution is one run of a workflow. RuntimeData is the shared mutable
// state visible to every node in the run; it is seeded from the
// workflow's static configuration when the execution starts.
type Execution struct {
	ID            string          `json:"id"`
	WorkflowID    string          `json:"workflowId"`
	Status        ExecutionStatus `json:"status"`
	ResultSummary string          `json:"resultSummary,omitempty"`
	Logs          []LogEntry      `json:"logs"`
	RuntimeData   map[string]any  `json:"runtimeData"`
	StartedAt     time.Time       `json:"startedAt"`
	FinishedAt    *time.Time      `json:"finishedAt,omitempty"`
}

// NodeExecution is one node's run within an execution. It is created
// when the node is dispatched and finalized exactly once.
type NodeExecution struct {
	ID          string          `json:"id"`
	ExecutionID string          `json:"executionId"`
	NodeID      string          `json:"nodeId"`
	Status      ExecutionStatus `json:"status"`
	Output      map[string]any  `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// BranchSelection is a node's explicit branch choice, read by the
// scheduler off the node's result. Selected 0 halts the branch; a
// positive Selected routes only along the matching "than_<n>" edge.
// Max must be positive for the selection to take effect.
type BranchSelection struct {
	Selected int `json:"selected"`
	Max      int `json:"max"`
}
