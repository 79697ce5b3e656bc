package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nodeflow/internal/models"
)

type stubCredentials map[string]string

func (s stubCredentials) GetByKey(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

func TestForProviderPerplexityUsesOwnEndpointAndKey(t *testing.T) {
	factory := NewFactory(stubCredentials{"PERPLEXITY_API_KEY": "pplx-key"})

	client, err := factory.ForProvider("perplexity")
	if err != nil {
		t.Fatalf("ForProvider failed: %v", err)
	}
	oc, ok := client.(*OpenAIClient)
	if !ok {
		t.Fatalf("client = %T, want OpenAI-compatible client", client)
	}
	if oc.baseURL != perplexityEndpoint {
		t.Errorf("baseURL = %q, want %q", oc.baseURL, perplexityEndpoint)
	}
	if oc.apiKey != "pplx-key" {
		t.Errorf("apiKey = %q, want the perplexity key", oc.apiKey)
	}
	if oc.providerName() != "perplexity" {
		t.Errorf("provider = %q, want perplexity", oc.providerName())
	}
}

func TestForProviderPerplexityMissingKey(t *testing.T) {
	factory := NewFactory(stubCredentials{"OPENAI_API_KEY": "sk-other"})

	_, err := factory.ForProvider("perplexity")
	if err == nil {
		t.Fatal("expected an error for the missing perplexity key")
	}
	if !strings.Contains(err.Error(), "perplexity") {
		t.Errorf("error = %q, want it to name the provider", err)
	}
}

func TestForProviderUnknownFallsBackToOpenAI(t *testing.T) {
	factory := NewFactory(stubCredentials{"OPENAI_API_KEY": "sk-test"})

	client, err := factory.ForProvider("mystery")
	if err != nil {
		t.Fatalf("ForProvider failed: %v", err)
	}
	oc, ok := client.(*OpenAIClient)
	if !ok {
		t.Fatalf("client = %T, want OpenAI-compatible client", client)
	}
	if oc.apiKey != "sk-test" {
		t.Errorf("apiKey = %q, want the openai key", oc.apiKey)
	}
}

func TestPerplexityCompleteSendsBearerKey(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"42"}}]}`))
	}))
	defer server.Close()

	factory := NewFactory(stubCredentials{"PERPLEXITY_API_KEY": "pplx-key"})
	client, err := factory.ForProvider("perplexity")
	if err != nil {
		t.Fatalf("ForProvider failed: %v", err)
	}
	client.(*OpenAIClient).baseURL = server.URL

	answer, err := client.Complete(context.Background(), []models.Message{{Role: "user", Content: "hi"}}, "sonar")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if answer != "42" {
		t.Errorf("answer = %q, want 42", answer)
	}
	if gotAuth != "Bearer pplx-key" {
		t.Errorf("Authorization = %q, want the perplexity bearer token", gotAuth)
	}
}
