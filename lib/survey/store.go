package survey

import (
	"context"
	"sync"
)

// Store persists sessions per conversation.
type Store interface {
	// Load returns the stored session, or a NotStarted one when none exists.
	Load(ctx context.Context, conversationID string) (Session, error)
	Save(ctx context.Context, session Session) error
}

// MemoryStore keeps sessions for the lifetime of the process.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) Load(_ context.Context, conversationID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[conversationID]; ok {
		return s, nil
	}
	return NewSession(conversationID), nil
}

func (m *MemoryStore) Save(_ context.Context, session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ConversationID] = session
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
