// Package agent drives the bounded tool-calling conversation between a
// chat model and the tool registry. The loop is a small state machine:
// awaiting_model → (tool call extracted) → awaiting_tool_result →
// awaiting_model → ... → final.
package agent

import (
	"context"
	"fmt"
	"strings"

	"nodeflow/internal/llm"
	"nodeflow/internal/models"
	"nodeflow/internal/tools"
)

// DefaultMaxIterations bounds the model/tool exchange per run
const DefaultMaxIterations = 20

// LogFunc receives the loop's diagnostic messages. Injected per run so
// agent output lands in the owning execution's log, never in a global
// sink.
type LogFunc func(message, level string)

// ClientFactory builds a chat client for a provider id
type ClientFactory interface {
	ForProvider(provider string) (llm.Client, error)
}

// Loop runs agent conversations against a tool registry
type Loop struct {
	clients       ClientFactory
	registry      *tools.Registry
	conversations *ConversationStore
	maxIterations int
}

// NewLoop creates an agent loop. maxIterations <= 0 selects the default.
func NewLoop(clients ClientFactory, registry *tools.Registry, conversations *ConversationStore, maxIterations int) *Loop {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Loop{
		clients:       clients,
		registry:      registry,
		conversations: conversations,
		maxIterations: maxIterations,
	}
}

// Request is one agent run
type Request struct {
	Model       models.ModelConfig
	Memory      *models.MemoryConfig // nil disables conversation memory
	Tools       any                  // tool list as handed over by the script (may be nested)
	Prompt      string               // the run's objective
	Inputs      any                  // upstream data, stringified into the first user turn
	ExecutionID string
	Log         LogFunc
}

// Run drives the loop to a final answer. Exhausting the iteration
// bound is not an error: the last assistant response is returned as a
// degraded final answer.
func (l *Loop) Run(ctx context.Context, req Request) (string, error) {
	logf := req.Log
	if logf == nil {
		logf = func(string, string) {}
	}

	provider := strings.ToLower(req.Model.Provider)
	if provider == "" {
		provider = "openai"
	}
	model := req.Model.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	client, err := l.clients.ForProvider(provider)
	if err != nil {
		return fmt.Sprintf("Error: API Key for %s not found.", provider), nil
	}

	specs := FlattenTools(req.Tools)
	allowed := make(map[string]bool, len(specs))
	for _, spec := range specs {
		allowed[strings.ToLower(spec.Name)] = true
	}

	systemPrompt := buildSystemPrompt(req.Prompt, specs, allowed)

	var session string
	var messages []models.Message
	if req.Memory != nil {
		session = SessionKey(req.ExecutionID)
		history := l.conversations.History(session)
		if req.Memory.Type == "window" {
			size := req.Memory.Size
			if size <= 0 {
				size = 5
			}
			// user+assistant pairs
			if keep := size * 2; len(history) > keep {
				history = history[len(history)-keep:]
			}
		}
		messages = append(messages, history...)
	}

	userInput := "Start execution"
	if req.Inputs != nil {
		userInput = fmt.Sprint(req.Inputs)
	}
	messages = append(messages,
		models.Message{Role: "system", Content: systemPrompt},
		models.Message{Role: "user", Content: userInput},
	)

	lastResponse := "Agent failed to provide a response."

	for i := 0; i < l.maxIterations; i++ {
		logf(fmt.Sprintf("[AGENT] Iteration %d starting...", i), "system")

		response, err := client.Complete(ctx, messages, model)
		if err != nil {
			// Provider failures surface as the run's answer, matching
			// the tool error contract: text the caller can react to.
			logf(fmt.Sprintf("[AGENT] Model call failed: %v", err), "error")
			return fmt.Sprintf("Error calling %s API: %v", provider, err), nil
		}

		logf(fmt.Sprintf("[AGENT] RAW AI Response:\n%s", truncate(response, 500)), "system")
		messages = append(messages, models.Message{Role: "assistant", Content: response})
		lastResponse = response

		call := ExtractToolCall(response)
		if call == nil {
			logf(fmt.Sprintf("[AGENT] Final answer provided. Response length: %d", len(response)), "system")
			if session != "" {
				l.conversations.Append(session,
					models.Message{Role: "user", Content: userInput},
					models.Message{Role: "assistant", Content: response},
				)
			}
			return response, nil
		}

		logf(fmt.Sprintf("[AGENT] Processing tool call: %s", call.Tool), "system")
		result := l.dispatch(call, specs, allowed, provider, req.ExecutionID)
		logf(fmt.Sprintf("[AGENT] Tool Result: %s", truncate(result, 500)), "system")

		messages = append(messages, models.Message{Role: "user", Content: "Tool result: " + result})
	}

	return lastResponse, nil
}

// dispatch resolves the tool name case-insensitively against the
// internal registry (filtered to the run's allow-set) and then the
// caller-supplied tool map, and executes it with tool-specific argument
// mapping. Every failure becomes a text result the model can react to.
func (l *Loop) dispatch(call *ToolCall, specs []ToolSpec, allowed map[string]bool, provider, executionID string) string {
	name := strings.ToLower(strings.TrimSpace(call.Tool))
	args := call.Parameters

	// Contextual fields the tools need but the model never supplies
	args["execution_id"] = executionID
	args["provider"] = provider

	// Internal registry, restricted to the tools this run was given
	if allowed[name] {
		if _, exists := l.registry.Resolve(name); exists {
			result, err := l.registry.Execute(name, args)
			if err != nil {
				return fmt.Sprintf("Execution error: %v", err)
			}
			return result
		}
	}

	// Caller-supplied tools (script-defined, carry their own execute)
	for _, spec := range specs {
		if !strings.EqualFold(spec.Name, name) {
			continue
		}
		if spec.Execute == nil {
			return fmt.Sprintf("Error: Tool '%s' not found or lacks execution function.", name)
		}
		result, err := spec.Execute(args)
		if err != nil {
			return fmt.Sprintf("Execution error: %v", err)
		}
		return result
	}

	return fmt.Sprintf("Error: Tool '%s' not found.", name)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
