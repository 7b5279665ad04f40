package tokenstore

import (
	"context"
	"fmt"
	"sync"

	"gatehouse/pkg/platform/sentinel"
)

// InMemoryStore keeps credentials in process memory, for tests and for
// short-lived CLI invocations that should not persist a session.
type InMemoryStore struct {
	mu    sync.RWMutex
	creds *Credentials
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Save(_ context.Context, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := creds
	s.creds = &c
	return nil
}

func (s *InMemoryStore) Load(_ context.Context) (*Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return nil, fmt.Errorf("credentials: %w", sentinel.ErrNotFound)
	}
	c := *s.creds
	return &c, nil
}

func (s *InMemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	return nil
}
