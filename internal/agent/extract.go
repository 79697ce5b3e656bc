package agent

import (
	"encoding/json"
	"sort"
	"strings"
)

// ToolCall is the normalized tool invocation shape the loop dispatches
type ToolCall struct {
	Tool       string
	Parameters map[string]any
}

// ExtractToolCall pulls a tool call out of free-form model output.
// Models do not reliably emit clean JSON, so the chain runs in a fixed
// order: direct parse after stripping code fences, then a greedy scan
// for the longest balanced {...} substring that parses as an object
// with a "tool" key, then normalization of an OpenAI-style
// function-call array. A nil result means the response is the final
// answer.
func ExtractToolCall(response string) *ToolCall {
	if call := parseDirect(response); call != nil {
		return call
	}
	if call := parseGreedy(response); call != nil {
		return call
	}
	return parseFunctionCallArray(response)
}

func parseDirect(response string) *ToolCall {
	trimmed := strings.TrimSpace(strings.TrimPrefix(response, "\uFEFF"))
	trimmed = stripCodeFence(trimmed)
	return parseCandidate(trimmed)
}

// stripCodeFence removes a surrounding markdown code block, including
// a language tag on the opening fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// parseGreedy collects every balanced {...} substring and tries them
// longest-first, so a tool call wrapped in narration is still found.
func parseGreedy(response string) *ToolCall {
	var candidates []string
	for start := 0; start < len(response); start++ {
		if response[start] != '{' {
			continue
		}
		if end := findBalancedClose(response, start); end > start {
			candidates = append(candidates, response[start:end+1])
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})

	for _, candidate := range candidates {
		if call := parseCandidate(candidate); call != nil {
			return call
		}
	}
	return nil
}

// findBalancedClose returns the index of the brace closing the one at
// start, skipping braces inside JSON string literals.
func findBalancedClose(s string, start int) int {
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parseCandidate(candidate string) *ToolCall {
	var data map[string]any
	if err := json.Unmarshal([]byte(candidate), &data); err != nil {
		return nil
	}
	name, ok := data["tool"].(string)
	if !ok || name == "" {
		return nil
	}
	params, _ := data["parameters"].(map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	return &ToolCall{Tool: name, Parameters: params}
}

// parseFunctionCallArray normalizes an OpenAI-style tool_calls array
// ([{"function": {"name": ..., "arguments": "..."}}]) into the same
// {tool, parameters} shape.
func parseFunctionCallArray(response string) *ToolCall {
	trimmed := strings.TrimSpace(response)
	if !strings.HasPrefix(trimmed, "[") || !strings.Contains(trimmed, "function") {
		return nil
	}

	var calls []map[string]any
	if err := json.Unmarshal([]byte(trimmed), &calls); err != nil || len(calls) == 0 {
		return nil
	}

	fn, ok := calls[0]["function"].(map[string]any)
	if !ok {
		return nil
	}
	name, ok := fn["name"].(string)
	if !ok || name == "" {
		return nil
	}

	params := map[string]any{}
	switch args := fn["arguments"].(type) {
	case string:
		_ = json.Unmarshal([]byte(args), &params)
	case map[string]any:
		params = args
	}
	return &ToolCall{Tool: name, Parameters: params}
}
