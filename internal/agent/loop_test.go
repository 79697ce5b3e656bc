package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"nodeflow/internal/llm"
	"nodeflow/internal/models"
	"nodeflow/internal/tools"
)

// scriptedClient replays a fixed sequence of responses and records what
// it was sent.
type scriptedClient struct {
	responses []string
	calls     int
	lastSeen  []models.Message
}

func (c *scriptedClient) Complete(ctx context.Context, messages []models.Message, model string) (string, error) {
	c.lastSeen = append([]models.Message(nil), messages...)
	if c.calls >= len(c.responses) {
		return "fallback final answer", nil
	}
	response := c.responses[c.calls]
	c.calls++
	return response, nil
}

type scriptedFactory struct {
	client *scriptedClient
}

func (f *scriptedFactory) ForProvider(provider string) (llm.Client, error) {
	return f.client, nil
}

func newTestLoop(client *scriptedClient, registry *tools.Registry, maxIterations int) *Loop {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return NewLoop(&scriptedFactory{client: client}, registry, NewConversationStore(), maxIterations)
}

func TestLoopExecutesToolsThenReturnsFinalAnswer(t *testing.T) {
	var executed []string
	echo := func(args map[string]any) (string, error) {
		executed = append(executed, fmt.Sprint(args["value"]))
		return "echoed " + fmt.Sprint(args["value"]), nil
	}

	client := &scriptedClient{responses: []string{
		`{"tool": "echo", "parameters": {"value": "one"}}`,
		`{"tool": "echo", "parameters": {"value": "two"}}`,
		"All done.",
	}}
	loop := newTestLoop(client, nil, 10)

	result, err := loop.Run(context.Background(), Request{
		Prompt:      "echo twice",
		ExecutionID: "exec-1",
		Tools: []any{
			map[string]any{"name": "echo", "description": "echoes", "execute": echo},
		},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result != "All done." {
		t.Errorf("result = %q, want final answer", result)
	}
	if len(executed) != 2 || executed[0] != "one" || executed[1] != "two" {
		t.Errorf("tool executions = %v", executed)
	}
	if client.calls != 3 {
		t.Errorf("model calls = %d, want 3", client.calls)
	}
}

func TestLoopExhaustionReturnsLastResponse(t *testing.T) {
	noop := func(args map[string]any) (string, error) { return "ok", nil }

	// Every response is a tool call, so the bound is always hit
	client := &scriptedClient{responses: []string{
		`{"tool": "noop", "parameters": {}}`,
		`{"tool": "noop", "parameters": {}}`,
		`{"tool": "noop", "parameters": {}}`,
	}}
	loop := newTestLoop(client, nil, 3)

	result, err := loop.Run(context.Background(), Request{
		Prompt:      "spin",
		ExecutionID: "exec-2",
		Tools: []any{
			map[string]any{"name": "noop", "execute": noop},
		},
	})
	if err != nil {
		t.Fatalf("exhaustion must not be an error, got %v", err)
	}
	if !strings.Contains(result, "noop") {
		t.Errorf("expected last raw response as degraded answer, got %q", result)
	}
	if client.calls != 3 {
		t.Errorf("model calls = %d, want exactly the bound", client.calls)
	}
}

func TestLoopToolNotFoundFedBackAsResult(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"tool": "imaginary", "parameters": {}}`,
		"Recovered.",
	}}
	loop := newTestLoop(client, nil, 5)

	result, err := loop.Run(context.Background(), Request{
		Prompt:      "try something",
		ExecutionID: "exec-3",
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result != "Recovered." {
		t.Errorf("result = %q", result)
	}

	// The not-found notice must have reached the model as a tool result
	var sawNotice bool
	for _, msg := range client.lastSeen {
		if msg.Role == "user" && strings.Contains(msg.Content, "Tool 'imaginary' not found") {
			sawNotice = true
		}
	}
	if !sawNotice {
		t.Error("tool-not-found notice never fed back to the model")
	}
}

func TestLoopSystemPromptFilteredToSuppliedTools(t *testing.T) {
	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewCalculatorTool()); err != nil {
		t.Fatalf("register: %v", err)
	}

	client := &scriptedClient{responses: []string{"done"}}
	loop := newTestLoop(client, registry, 5)

	_, err := loop.Run(context.Background(), Request{
		Prompt:      "no tools for you",
		ExecutionID: "exec-4",
		Tools: []any{
			map[string]any{"name": "echo", "description": "echoes"},
		},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var systemPrompt string
	for _, msg := range client.lastSeen {
		if msg.Role == "system" {
			systemPrompt = msg.Content
		}
	}
	if systemPrompt == "" {
		t.Fatal("no system prompt sent")
	}
	if strings.Contains(systemPrompt, "calculator") {
		t.Error("registry tool outside the allow-set leaked into the system prompt")
	}
	if !strings.Contains(systemPrompt, "echo") {
		t.Error("supplied tool missing from the system prompt")
	}
}

func TestLoopWindowMemoryTrimsHistory(t *testing.T) {
	client := &scriptedClient{responses: []string{"final"}}
	loop := newTestLoop(client, nil, 5)

	session := SessionKey("exec-5")
	for i := 0; i < 10; i++ {
		loop.conversations.Append(session,
			models.Message{Role: "user", Content: fmt.Sprintf("q%d", i)},
			models.Message{Role: "assistant", Content: fmt.Sprintf("a%d", i)},
		)
	}

	_, err := loop.Run(context.Background(), Request{
		Prompt:      "remember",
		ExecutionID: "exec-5",
		Memory:      &models.MemoryConfig{Type: "window", Size: 2},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// window of 2 exchanges = 4 history turns, plus system and input
	if len(client.lastSeen) != 6 {
		t.Fatalf("messages sent = %d, want 6", len(client.lastSeen))
	}
	if client.lastSeen[0].Content != "q8" {
		t.Errorf("oldest surviving turn = %q, want q8", client.lastSeen[0].Content)
	}
}
