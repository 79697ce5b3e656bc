package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"nodeflow/internal/models"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIClient talks to the OpenAI chat completions API (and any
// OpenAI-compatible provider, e.g. Perplexity). provider labels log
// lines and errors when the wire format is borrowed.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	provider   string
	httpClient *http.Client
	logger     *logrus.Logger
	limiter    *rate.Limiter
}

func (c *OpenAIClient) providerName() string {
	if c.provider == "" {
		return "openai"
	}
	return c.provider
}

type openAIRequest struct {
	Model    string           `json:"model"`
	Messages []models.Message `json:"messages"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   string          `json:"content"`
			ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the message list and returns the assistant text. When
// the model answers with structured tool calls instead of content, the
// raw tool-call JSON is returned so the agent loop can normalize it.
func (c *OpenAIClient) Complete(ctx context.Context, messages []models.Message, model string) (string, error) {
	endpoint := c.baseURL
	if endpoint == "" {
		endpoint = openAIEndpoint
	}

	body, err := json.Marshal(openAIRequest{Model: model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	name := c.providerName()
	c.logger.WithFields(logrus.Fields{
		"provider": name,
		"model":    model,
		"messages": len(messages),
	}).Debug("Sending chat completion request")

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%s request canceled: %w", name, err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s response: %w", name, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned HTTP %d: %s", name, resp.StatusCode, string(data))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode %s response: %w", name, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%s error: %s", name, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", name)
	}

	msg := parsed.Choices[0].Message
	if msg.Content == "" && len(msg.ToolCalls) > 0 {
		return string(msg.ToolCalls), nil
	}
	return msg.Content, nil
}
