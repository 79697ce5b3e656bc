package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"nodeflow/internal/models"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiClient talks to the Gemini generateContent API
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
	limiter    *rate.Limiter
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Tools             []map[string]any `json:"tools,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete converts the standard role/content list into Gemini's
// contents format (system turns become the systemInstruction, assistant
// becomes "model") and returns the first candidate's text.
func (c *GeminiClient) Complete(ctx context.Context, messages []models.Message, model string) (string, error) {
	var system *geminiContent
	var contents []geminiContent
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if system == nil {
				system = &geminiContent{Parts: []geminiPart{{Text: msg.Content}}}
			} else {
				system.Parts = append(system.Parts, geminiPart{Text: msg.Content})
			}
		case "assistant":
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: msg.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: msg.Content}}})
		}
	}

	return c.generate(ctx, model, geminiRequest{Contents: contents, SystemInstruction: system})
}

// GenerateWithSearch runs a single-turn generation with the provider's
// web search tool enabled. Backs the smart_search tool when the active
// provider is gemini.
func (c *GeminiClient) GenerateWithSearch(ctx context.Context, query, model string) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: query}}}},
		Tools:    []map[string]any{{"google_search": map[string]any{}}},
	}
	return c.generate(ctx, model, req)
}

func (c *GeminiClient) generate(ctx context.Context, model string, payload geminiRequest) (string, error) {
	base := c.baseURL
	if base == "" {
		base = geminiEndpoint
	}
	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", base, url.PathEscape(model), url.QueryEscape(c.apiKey))

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logrus.Fields{
		"provider": "gemini",
		"model":    model,
		"contents": len(payload.Contents),
	}).Debug("Sending generateContent request")

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("gemini request canceled: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read gemini response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini returned HTTP %d: %s", resp.StatusCode, string(data))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode gemini response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("gemini error: %s", parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
