package agent

import (
	"testing"
)

func TestExtractDirectJSON(t *testing.T) {
	call := ExtractToolCall(`{"tool": "calculator", "parameters": {"expression": "2+2"}}`)
	if call == nil {
		t.Fatal("expected a tool call, got nil")
	}
	if call.Tool != "calculator" {
		t.Errorf("tool = %q, want calculator", call.Tool)
	}
	if call.Parameters["expression"] != "2+2" {
		t.Errorf("parameters = %v", call.Parameters)
	}
}

func TestExtractStripsLeadingBOM(t *testing.T) {
	call := ExtractToolCall("\ufeff{\"tool\": \"calculator\", \"parameters\": {\"expression\": \"1+1\"}}")
	if call == nil {
		t.Fatal("expected a tool call, got nil")
	}
	if call.Tool != "calculator" {
		t.Errorf("tool = %q, want calculator", call.Tool)
	}
}

func TestExtractCodeFencedJSON(t *testing.T) {
	response := "```json\n{\"tool\": \"smart_search\", \"parameters\": {\"query\": \"weather\"}}\n```"
	call := ExtractToolCall(response)
	if call == nil {
		t.Fatal("expected a tool call, got nil")
	}
	if call.Tool != "smart_search" {
		t.Errorf("tool = %q, want smart_search", call.Tool)
	}
}

func TestExtractEmbeddedInNarration(t *testing.T) {
	response := `I will now look that up for you.
{"tool": "database_query", "parameters": {"query": "SELECT * FROM orders"}}
Let me know if you need more.`
	call := ExtractToolCall(response)
	if call == nil {
		t.Fatal("expected a tool call, got nil")
	}
	if call.Tool != "database_query" {
		t.Errorf("tool = %q, want database_query", call.Tool)
	}
}

func TestExtractPrefersLongestBalancedObject(t *testing.T) {
	// The nested parameters object is itself balanced; the outer,
	// longer candidate must win.
	response := `{"tool": "write_runtime_data", "parameters": {"data": {"count": 3}}}`
	call := ExtractToolCall(response)
	if call == nil {
		t.Fatal("expected a tool call, got nil")
	}
	data, ok := call.Parameters["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested data mapping, got %v", call.Parameters)
	}
	if data["count"] != float64(3) {
		t.Errorf("data = %v", data)
	}
}

func TestExtractFunctionCallArray(t *testing.T) {
	response := `[{"function": {"name": "calculator", "arguments": "{\"expression\": \"6*7\"}"}}]`
	call := ExtractToolCall(response)
	if call == nil {
		t.Fatal("expected a tool call, got nil")
	}
	if call.Tool != "calculator" {
		t.Errorf("tool = %q, want calculator", call.Tool)
	}
	if call.Parameters["expression"] != "6*7" {
		t.Errorf("parameters = %v", call.Parameters)
	}
}

func TestExtractPlainTextIsFinalAnswer(t *testing.T) {
	if call := ExtractToolCall("The answer is 4."); call != nil {
		t.Errorf("expected nil for plain text, got %+v", call)
	}
}

func TestExtractIgnoresJSONWithoutToolKey(t *testing.T) {
	if call := ExtractToolCall(`{"result": "done", "status": "ok"}`); call != nil {
		t.Errorf("expected nil for JSON without a tool key, got %+v", call)
	}
}

func TestExtractBracesInsideStrings(t *testing.T) {
	response := `{"tool": "smart_search", "parameters": {"query": "what does {x} mean"}}`
	call := ExtractToolCall(response)
	if call == nil {
		t.Fatal("expected a tool call, got nil")
	}
	if call.Parameters["query"] != "what does {x} mean" {
		t.Errorf("parameters = %v", call.Parameters)
	}
}

func TestFlattenToolsNormalizesIrregularShapes(t *testing.T) {
	execute := func(args map[string]any) (string, error) { return "ok", nil }
	raw := []any{
		map[string]any{"name": "alpha", "description": "first"},
		[]any{
			map[string]any{"name": "beta", "execute": execute},
		},
		map[string]any{"description": "nameless, must be dropped"},
	}

	specs := FlattenTools(raw)
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs[0].Name != "alpha" || specs[1].Name != "beta" {
		t.Errorf("unexpected order: %v, %v", specs[0].Name, specs[1].Name)
	}
	if specs[1].Execute == nil {
		t.Error("beta's execute function was lost")
	}
}

func TestFlattenToolsSingleMapping(t *testing.T) {
	specs := FlattenTools(map[string]any{"name": "solo"})
	if len(specs) != 1 || specs[0].Name != "solo" {
		t.Fatalf("expected single spec named solo, got %v", specs)
	}
}
