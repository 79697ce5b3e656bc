package agent

import (
	"fmt"
	"strings"
)

// ToolSpec is the description of one tool offered to a run
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
	Execute     func(args map[string]any) (string, error) // nil for internal tools
}

// FlattenTools normalizes whatever shape a node script handed over —
// a list, nested sublists, or a single mapping — into a flat tool list.
// Entries without a name are dropped.
func FlattenTools(raw any) []ToolSpec {
	var flat []map[string]any
	var walk func(item any)
	walk = func(item any) {
		switch v := item.(type) {
		case []any:
			for _, sub := range v {
				walk(sub)
			}
		case map[string]any:
			flat = append(flat, v)
		}
	}
	walk(raw)

	var specs []ToolSpec
	for _, entry := range flat {
		name, _ := entry["name"].(string)
		if name == "" {
			continue
		}
		spec := ToolSpec{Name: name}
		spec.Description, _ = entry["description"].(string)
		spec.Parameters, _ = entry["parameters"].(map[string]any)
		if execute, ok := entry["execute"].(func(args map[string]any) (string, error)); ok {
			spec.Execute = execute
		}
		specs = append(specs, spec)
	}
	return specs
}

// buildSystemPrompt constructs the run's system prompt: the objective,
// the strict single-JSON-object output contract, behavioral rules, and
// a description list covering exactly the tools supplied to this run.
func buildSystemPrompt(objective string, specs []ToolSpec, allowed map[string]bool) string {
	var desc strings.Builder
	for _, spec := range specs {
		description := spec.Description
		if description == "" {
			description = "No description provided"
		}
		fmt.Fprintf(&desc, "- %s: %s\n", spec.Name, description)
	}

	var conditional strings.Builder
	if allowed["smart_search"] {
		conditional.WriteString("- Use 'smart_search' for any information lookup.\n")
	}
	if allowed["read_workflow_data"] {
		conditional.WriteString("- Use 'read_workflow_data' to see static configuration.\n")
	}
	if allowed["read_runtime_data"] {
		conditional.WriteString("- Use 'read_runtime_data' to see shared dynamic state.\n")
	}
	if allowed["write_runtime_data"] {
		conditional.WriteString("- Use 'write_runtime_data' to update shared dynamic state.\n")
	}

	toolsDesc := desc.String()
	if toolsDesc == "" {
		toolsDesc = "No specific tools provided."
	}

	return fmt.Sprintf(`You are an autonomous AI Agent.
Objective: %s

RESPONSE FORMAT:
If you need to use a tool, you MUST output ONLY a JSON object in this format:
{"tool": "tool_name", "parameters": {"param1": "value1"}}

RULES:
1. NEVER narrate your thoughts or explain what you are about to do.
2. NEVER simulate or hallucinate tool results.
3. If a tool is needed, your response MUST be the JSON tool call and NOTHING ELSE.
4. Only provide a natural language final answer AFTER all necessary tool results have been received.
%s
Available Tools:
%s`, objective, conditional.String(), toolsDesc)
}
