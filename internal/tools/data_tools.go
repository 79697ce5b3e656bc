package tools

import (
	"encoding/json"
	"fmt"
)

// NewReadWorkflowDataTool creates the read_workflow_data tool, which
// returns the execution's workflow static configuration as text.
func NewReadWorkflowDataTool(store RuntimeDataStore) *Tool {
	return &Tool{
		Name:        "read_workflow_data",
		Description: "Reads the workflow's static configuration data.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		Execute: func(args map[string]any) (string, error) {
			executionID, ok := stringArg(args, "execution_id")
			if !ok || executionID == "" {
				return "Error: No execution context available.", nil
			}
			data, err := store.GetWorkflowData(executionID)
			if err != nil {
				return fmt.Sprintf("Error: %v", err), nil
			}
			return marshalData(data)
		},
	}
}

// NewReadRuntimeDataTool creates the read_runtime_data tool, which
// returns the execution's live shared runtime data as text.
func NewReadRuntimeDataTool(store RuntimeDataStore) *Tool {
	return &Tool{
		Name:        "read_runtime_data",
		Description: "Reads the shared runtime data of the current execution.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		Execute: func(args map[string]any) (string, error) {
			executionID, ok := stringArg(args, "execution_id")
			if !ok || executionID == "" {
				return "Error: No execution context available.", nil
			}
			data, err := store.GetRuntimeData(executionID)
			if err != nil {
				return fmt.Sprintf("Error: %v", err), nil
			}
			return marshalData(data)
		},
	}
}

// NewWriteRuntimeDataTool creates the write_runtime_data tool. The
// payload may be a native mapping or a JSON-encoded string; its keys
// are shallow-merged onto the existing runtime data and persisted.
func NewWriteRuntimeDataTool(store RuntimeDataStore) *Tool {
	return &Tool{
		Name:        "write_runtime_data",
		Description: "Merges the given mapping into the execution's shared runtime data.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"data": map[string]any{
					"type":        "object",
					"description": "Mapping (or JSON text) of keys to merge into runtime data",
				},
			},
			"required": []string{"data"},
		},
		Execute: func(args map[string]any) (string, error) {
			executionID, ok := stringArg(args, "execution_id")
			if !ok || executionID == "" {
				return "Error: No execution context available.", nil
			}

			payload := args["data"]
			if payload == nil {
				payload = args["json"]
			}
			if payload == nil {
				return "Error: No data provided to write.", nil
			}

			patch, err := coercePatch(payload)
			if err != nil {
				return fmt.Sprintf("Error: %v", err), nil
			}

			if err := store.MergeRuntimeData(executionID, patch); err != nil {
				return fmt.Sprintf("Error: %v", err), nil
			}
			return "Runtime data updated successfully.", nil
		},
	}
}

func coercePatch(payload any) (map[string]any, error) {
	switch v := payload.(type) {
	case map[string]any:
		return v, nil
	case string:
		var patch map[string]any
		if err := json.Unmarshal([]byte(v), &patch); err != nil {
			return nil, fmt.Errorf("data is not valid JSON: %v", err)
		}
		return patch, nil
	default:
		return nil, fmt.Errorf("data must be a mapping or a JSON string")
	}
}

func marshalData(data map[string]any) (string, error) {
	if data == nil {
		return "Error: No data found.", nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	return string(encoded), nil
}
