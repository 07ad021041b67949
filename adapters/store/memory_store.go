package store

import (
	"context"
	"sync"

	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/ports"
)

// MemoryStore is an in-memory implementation of the CredentialStore interface
type MemoryStore struct {
	session *core.Session
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() ports.CredentialStore {
	return &MemoryStore{}
}

// Get returns a copy of the stored session
func (s *MemoryStore) Get(ctx context.Context) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return nil, core.ErrNoCredential
	}
	cp := *s.session
	return &cp, nil
}

// Set replaces the stored session
func (s *MemoryStore) Set(ctx context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.session = &cp
	return nil
}

// Clear removes the stored session
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = nil
	return nil
}
