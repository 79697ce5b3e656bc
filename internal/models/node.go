package models

// ParameterSpec declares one parameter a node type accepts
type ParameterSpec struct {
	Name    string `json:"name"`
	Type    string `json:"type"` // string, int, float, bool, object, array
	Default any    `json:"default,omitempty"`
}

// NodeTypeDefinition is an immutable-per-version node template. Script
// holds the node's source text; the engine only reads these records,
// admin tooling owns their lifecycle.
type NodeTypeDefinition struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description,omitempty"`
	Script       string          `json:"script"`
	InputSchema  map[string]any  `json:"inputSchema"`
	OutputSchema map[string]any  `json:"outputSchema"`
	Parameters   []ParameterSpec `json:"parameters"`
	Category     string          `json:"category,omitempty"`
	IsAsync      bool            `json:"isAsync"`
}

// StartNodeType is the reserved node type name that marks the
// distinguished entry point of a workflow graph.
const StartNodeType = "Start"
