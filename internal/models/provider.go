package models

// ModelConfig selects a chat model backend for an agent run. Provider
// is "openai", "gemini" or another OpenAI-compatible provider id.
type ModelConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// MemoryConfig controls conversation memory for an agent run.
// Type "window" keeps only the last Size user/assistant pairs.
type MemoryConfig struct {
	Type string `json:"type"` // "buffer" or "window"
	Size int    `json:"size,omitempty"`
}

// Message is one turn of a model conversation
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}
