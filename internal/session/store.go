package session

import (
	"context"
	"sync"
)

// Store maps a session id to its ordered message history.
//
// GetHistory never fails: an unseen session id is an empty history, not an
// error. SaveHistory overwrites the whole history (last writer wins); there is
// no partial append so backings that only support whole-value writes stay
// interchangeable.
type Store interface {
	GetHistory(ctx context.Context, sessionID string) []Message
	SaveHistory(ctx context.Context, sessionID string, history []Message) error
}

// MemoryStore keeps histories in process memory. Contents are lost on restart
// and never shared across processes; intended for single-instance deployments
// and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Message
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string][]Message{}}
}

func (s *MemoryStore) GetHistory(_ context.Context, sessionID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.sessions[sessionID]
	out := make([]Message, len(history))
	copy(out, history)
	return out
}

func (s *MemoryStore) SaveHistory(_ context.Context, sessionID string, history []Message) error {
	stored := make([]Message, len(history))
	copy(stored, history)

	s.mu.Lock()
	s.sessions[sessionID] = stored
	s.mu.Unlock()
	return nil
}
