package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Tool represents a callable tool with its metadata and execution function
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON-schema-like spec
	Execute     ExecuteFunc
}

// ExecuteFunc is the function signature for tool execution. Contextual
// fields the dispatcher injects (execution_id, provider) arrive in the
// same args bag as the model-supplied parameters.
type ExecuteFunc func(args map[string]any) (string, error)

// RuntimeDataStore is the slice of the execution state manager the
// data tools need: read static workflow configuration and read/merge
// the live shared runtime data of an execution.
type RuntimeDataStore interface {
	GetWorkflowData(executionID string) (map[string]any, error)
	GetRuntimeData(executionID string) (map[string]any, error)
	MergeRuntimeData(executionID string, patch map[string]any) error
}

// Searcher runs a provider-specific web search (see smart_search)
type Searcher interface {
	Search(ctx context.Context, query, provider string) (string, error)
}

// Registry manages the built-in tool catalogue
type Registry struct {
	tools   map[string]*Tool
	aliases map[string]string
	mutex   sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]*Tool),
		aliases: make(map[string]string),
	}
}

// Register adds a new tool to the registry
func (r *Registry) Register(tool *Tool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Execute == nil {
		return fmt.Errorf("tool %s must have an Execute function", tool.Name)
	}
	key := strings.ToLower(tool.Name)
	if _, exists := r.tools[key]; exists {
		return fmt.Errorf("tool %s is already registered", tool.Name)
	}
	r.tools[key] = tool
	return nil
}

// Alias maps an alternative name onto a registered tool
func (r *Registry) Alias(alias, target string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.aliases[strings.ToLower(alias)] = strings.ToLower(target)
}

// Resolve finds a tool by name or alias, case-insensitively
func (r *Registry) Resolve(name string) (*Tool, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	key := strings.ToLower(strings.TrimSpace(name))
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	tool, exists := r.tools[key]
	return tool, exists
}

// Names returns every registered canonical name and alias
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.tools)+len(r.aliases))
	for name := range r.tools {
		names = append(names, name)
	}
	for alias := range r.aliases {
		names = append(names, alias)
	}
	return names
}

// Execute dispatches a tool by name. Lookup failure and tool panics are
// converted to error values; the caller turns them into text results.
func (r *Registry) Execute(name string, args map[string]any) (result string, err error) {
	tool, exists := r.Resolve(name)
	if !exists {
		return "", fmt.Errorf("tool %s not found", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = ""
			err = fmt.Errorf("tool %s panicked: %v", name, rec)
		}
	}()
	return tool.Execute(args)
}

// stringArg pulls the first present key out of the args bag as a
// string; as a last resort the whole bag is coerced to text.
func stringArg(args map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := args[key]; ok && v != nil {
			if s, ok := v.(string); ok {
				return s, true
			}
			return fmt.Sprint(v), true
		}
	}
	return "", false
}
