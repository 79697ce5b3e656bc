package execution

import (
	"context"
	"encoding/json"
	"fmt"

	"nodeflow/internal/agent"
	"nodeflow/internal/llm"
	"nodeflow/internal/models"
	"nodeflow/internal/sandbox"
	"nodeflow/internal/services"
)

// Capabilities bundles the host services a node script can reach
// through the libs namespace. One instance per execution; the namespace
// itself is rebuilt per node so log entries carry the right node id.
type Capabilities struct {
	State        *StateManager
	Agent        *agent.Loop
	LLM          *llm.Factory
	Credentials  *services.CredentialService
	DefaultModel models.ModelConfig
}

// libsFor builds the injected library namespace for one node invocation
func (c *Capabilities) libsFor(ctx context.Context, nodeID string) map[string]sandbox.NativeFunc {
	return map[string]sandbox.NativeFunc{
		"log":                c.logFunc(nodeID),
		"get_credential":     c.getCredential,
		"read_workflow_data": c.readWorkflowData,
		"read_runtime_data":  c.readRuntimeData,
		"write_runtime_data": c.writeRuntimeData,
		"ask_ai":             c.askAI(ctx, nodeID),
		"agent_run":          c.agentRun(ctx, nodeID),
	}
}

func (c *Capabilities) logFunc(nodeID string) sandbox.NativeFunc {
	return func(args []any, kwargs map[string]any) (any, error) {
		if len(args) == 0 {
			return nil, nil
		}
		level := "info"
		if l, ok := kwargs["level"].(string); ok && l != "" {
			level = l
		}
		c.State.Log(fmt.Sprint(args[0]), nodeID, level)
		return nil, nil
	}
}

func (c *Capabilities) getCredential(args []any, kwargs map[string]any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("get_credential: missing key")
	}
	key, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("get_credential: key must be a string")
	}
	value, found := c.Credentials.GetByKey(key)
	if !found {
		return nil, nil
	}
	return value, nil
}

func (c *Capabilities) readWorkflowData(args []any, kwargs map[string]any) (any, error) {
	return c.State.WorkflowData(), nil
}

func (c *Capabilities) readRuntimeData(args []any, kwargs map[string]any) (any, error) {
	data, err := c.State.RuntimeData()
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		if key, ok := args[0].(string); ok {
			return data[key], nil
		}
	}
	return data, nil
}

func (c *Capabilities) writeRuntimeData(args []any, kwargs map[string]any) (any, error) {
	if len(args) == 0 || args[0] == nil {
		return nil, fmt.Errorf("write_runtime_data: missing data")
	}
	patch, err := coercePatch(args[0])
	if err != nil {
		return nil, err
	}
	if err := c.State.MergeRuntimeData(patch); err != nil {
		return nil, err
	}
	return true, nil
}

func coercePatch(raw any) (map[string]any, error) {
	switch x := raw.(type) {
	case map[string]any:
		return x, nil
	case string:
		var patch map[string]any
		if err := json.Unmarshal([]byte(x), &patch); err != nil {
			return nil, fmt.Errorf("write_runtime_data: invalid JSON: %v", err)
		}
		return patch, nil
	default:
		return nil, fmt.Errorf("write_runtime_data: data must be a mapping or JSON text")
	}
}

// askAI is the one-shot completion helper. Provider failures come back
// as text so a script can branch on them instead of dying.
func (c *Capabilities) askAI(ctx context.Context, nodeID string) sandbox.NativeFunc {
	return func(args []any, kwargs map[string]any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("ask_ai: missing prompt")
		}
		prompt := fmt.Sprint(args[0])

		provider := c.DefaultModel.Provider
		model := c.DefaultModel.Model
		if p, ok := kwargs["provider"].(string); ok && p != "" {
			provider = p
		}
		if m, ok := kwargs["model"].(string); ok && m != "" {
			model = m
		}

		client, err := c.LLM.ForProvider(provider)
		if err != nil {
			return fmt.Sprintf("Error: API Key for %s not found.", provider), nil
		}
		response, err := client.Complete(ctx, []models.Message{{Role: "user", Content: prompt}}, model)
		if err != nil {
			c.State.Log(fmt.Sprintf("ask_ai call failed: %v", err), nodeID, "error")
			return fmt.Sprintf("Error calling %s API: %v", provider, err), nil
		}
		return response, nil
	}
}

// agentRun hands control to the tool-calling agent loop. The config
// mapping carries model, memory, tools, prompt, and inputs; keyword
// arguments override mapping entries.
func (c *Capabilities) agentRun(ctx context.Context, nodeID string) sandbox.NativeFunc {
	return func(args []any, kwargs map[string]any) (any, error) {
		config := map[string]any{}
		if len(args) > 0 {
			if m, ok := args[0].(map[string]any); ok {
				config = m
			}
		}
		for key, value := range kwargs {
			config[key] = value
		}

		req := agent.Request{
			Model:       c.DefaultModel,
			Tools:       config["tools"],
			Inputs:      config["inputs"],
			ExecutionID: c.State.ExecutionID(),
			Log: func(message, level string) {
				c.State.Log(message, nodeID, level)
			},
		}

		if modelCfg, ok := config["model"].(map[string]any); ok {
			if p, ok := modelCfg["provider"].(string); ok && p != "" {
				req.Model.Provider = p
			}
			if m, ok := modelCfg["model"].(string); ok && m != "" {
				req.Model.Model = m
			}
		}
		if memCfg, ok := config["memory"].(map[string]any); ok {
			mem := models.MemoryConfig{Type: "window", Size: 5}
			if t, ok := memCfg["type"].(string); ok && t != "" {
				mem.Type = t
			}
			if size, ok := asInt(memCfg["size"]); ok && size > 0 {
				mem.Size = size
			}
			req.Memory = &mem
		}
		if prompt, ok := config["prompt"].(string); ok {
			req.Prompt = prompt
		} else if objective, ok := config["objective"].(string); ok {
			req.Prompt = objective
		}

		return c.Agent.Run(ctx, req)
	}
}
