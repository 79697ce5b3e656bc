package agent

import (
	"sync"

	"github.com/patrickmn/go-cache"

	"nodeflow/internal/models"
)

// ConversationStore keeps per-session model conversation history for
// the lifetime of the process. Session keys are derived from the
// execution id, so concurrent executions never share context. Nothing
// here is persisted: a restart clears all conversations, which is
// acceptable loss (execution records live in the store).
type ConversationStore struct {
	sessions *cache.Cache
	mu       sync.Mutex
}

// NewConversationStore creates an empty conversation store
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		sessions: cache.New(cache.NoExpiration, 0),
	}
}

// SessionKey derives the store key for an execution. Executions get
// isolated sessions; calls without an execution share the default one.
func SessionKey(executionID string) string {
	if executionID == "" {
		return "default-session"
	}
	return "exec-" + executionID
}

// History returns a copy of the session's messages, creating the
// session lazily on first use.
func (s *ConversationStore) History(session string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.sessions.Get(session); ok {
		stored := v.([]models.Message)
		out := make([]models.Message, len(stored))
		copy(out, stored)
		return out
	}
	return nil
}

// Append adds turns to the session's history
func (s *ConversationStore) Append(session string, messages ...models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored []models.Message
	if v, ok := s.sessions.Get(session); ok {
		stored = v.([]models.Message)
	}
	stored = append(stored, messages...)
	s.sessions.Set(session, stored, cache.NoExpiration)
}

// Drop removes a session. Called when its execution completes.
func (s *ConversationStore) Drop(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Delete(session)
}
