// Package llm holds the chat completion clients the agent loop talks
// to. Each backend is an HTTP client around one provider's wire format;
// the loop only sees the Client interface.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"nodeflow/internal/models"
)

// CredentialSource resolves API keys by name
type CredentialSource interface {
	GetByKey(key string) (string, bool)
}

// Client sends a full message list to a chat model and returns the raw
// response text. Responses carrying structured tool calls are returned
// as their JSON text; the agent loop normalizes them.
type Client interface {
	Complete(ctx context.Context, messages []models.Message, model string) (string, error)
}

// Factory builds provider-specific clients backed by stored credentials.
// A shared limiter paces outbound provider calls so agent loops and
// parallel node runs cannot hammer a provider past its request quota.
type Factory struct {
	credentials CredentialSource
	httpClient  *http.Client
	logger      *logrus.Logger
	limiter     *rate.Limiter
}

// NewFactory creates a client factory
func NewFactory(credentials CredentialSource) *Factory {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &Factory{
		credentials: credentials,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Limit(5), 10), // 5 req/s, burst 10
	}
}

const perplexityEndpoint = "https://api.perplexity.ai/chat/completions"

// ForProvider returns the client for a provider id ("openai", "gemini",
// "perplexity"). Unknown providers fall back to the OpenAI-compatible
// client with the OpenAI key.
func (f *Factory) ForProvider(provider string) (Client, error) {
	switch strings.ToLower(provider) {
	case "gemini":
		key, ok := f.geminiKey()
		if !ok {
			return nil, fmt.Errorf("API key for gemini not found")
		}
		return &GeminiClient{apiKey: key, httpClient: f.httpClient, logger: f.logger, limiter: f.limiter}, nil
	case "perplexity":
		key, ok := f.credentials.GetByKey("PERPLEXITY_API_KEY")
		if !ok {
			return nil, fmt.Errorf("API key for perplexity not found")
		}
		return &OpenAIClient{
			apiKey:     key,
			baseURL:    perplexityEndpoint,
			provider:   "perplexity",
			httpClient: f.httpClient,
			logger:     f.logger,
			limiter:    f.limiter,
		}, nil
	default:
		key, ok := f.credentials.GetByKey("OPENAI_API_KEY")
		if !ok {
			return nil, fmt.Errorf("API key for %s not found", provider)
		}
		return &OpenAIClient{apiKey: key, httpClient: f.httpClient, logger: f.logger, limiter: f.limiter}, nil
	}
}

// geminiKey supports the common key spellings found in stored credentials
func (f *Factory) geminiKey() (string, bool) {
	for _, name := range []string{"GEMINI_API_KEY", "GEMINI_API", "GEMENI_API"} {
		if key, ok := f.credentials.GetByKey(name); ok {
			return key, true
		}
	}
	return "", false
}
