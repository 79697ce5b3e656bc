package llm

import (
	"context"
	"fmt"
	"strings"
)

// Search runs a provider-specific web search for the smart_search tool.
// The provider hint comes from the agent run's active model config; the
// call never reaches a provider other than the implied one. Errors are
// provider-labeled strings, matching the tool error contract.
func (f *Factory) Search(ctx context.Context, query, provider string) (string, error) {
	switch strings.ToLower(provider) {
	case "gemini":
		key, ok := f.geminiKey()
		if !ok {
			return "", fmt.Errorf("Error (gemini): API key not found")
		}
		client := &GeminiClient{apiKey: key, httpClient: f.httpClient, logger: f.logger}
		result, err := client.GenerateWithSearch(ctx, query, "gemini-2.0-flash")
		if err != nil {
			return "", fmt.Errorf("Error (gemini): %v", err)
		}
		return result, nil
	default:
		return "", fmt.Errorf("Error (%s): web search is not supported for this provider", provider)
	}
}
