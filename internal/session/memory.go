package session

import (
	"context"
	"sync"

	"accounts_service/internal/models"

	"github.com/gofrs/uuid"
)

// MemoryStore is an in-process Store used in tests. It mirrors the Redis
// store's replace-on-create semantics under a mutex.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]models.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[uuid.UUID]models.Session)}
}

func (m *MemoryStore) Create(_ context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.IdentityID] = s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, identityID uuid.UUID) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[identityID]
	if !ok {
		return models.Session{}, ErrNoSession
	}
	return s, nil
}

func (m *MemoryStore) DestroyAllFor(_ context.Context, identityID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, identityID)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Len reports the number of live sessions across all identities.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
