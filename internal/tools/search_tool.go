package tools

import (
	"context"
	"time"
)

// NewSmartSearchTool creates the smart_search tool. The dispatcher
// injects a "provider" hint from the active model configuration; the
// searcher must never call a provider other than the implied one.
func NewSmartSearchTool(searcher Searcher) *Tool {
	return &Tool{
		Name:        "smart_search",
		Description: "Searches the web using the active model provider's search capability.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query",
				},
			},
			"required": []string{"query"},
		},
		Execute: func(args map[string]any) (string, error) {
			query, ok := stringArg(args, "query", "q", "parameters")
			if !ok || query == "" {
				return "Error: Missing search query", nil
			}
			provider, _ := stringArg(args, "provider")
			if provider == "" {
				provider = "openai"
			}

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			result, err := searcher.Search(ctx, query, provider)
			if err != nil {
				return err.Error(), nil
			}
			return result, nil
		},
	}
}
