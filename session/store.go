// Package session owns the per-client secondary-identity selection state: the
// currently acting identity, the set of identities that have passed a PIN
// challenge, and the identity-required gate flag. Selection must always go
// through authentication; the authenticated set only grows within a session
// and is wiped by Reset.
package session

import (
	"context"
	"sync"
)

// State is the persisted slice of a session: the selected identity and the
// PIN-authenticated set. The gate flag is process state and is not persisted.
type State struct {
	CurrentIdentityID string   `json:"current_identity_id"`
	AuthenticatedIDs  []string `json:"authenticated_ids"`
}

// StateStore persists selection state across client reloads. How long a
// stored state survives is the store's scope policy, not the session's.
type StateStore interface {
	Save(ctx context.Context, key string, state State) error
	// Load returns the stored state and whether one existed.
	Load(ctx context.Context, key string) (State, bool, error)
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-process StateStore for tests and single-node use.
// Sessions persist from concurrent requests, so access is synchronized.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (m *MemoryStore) Save(ctx context.Context, key string, state State) error {
	cp := state
	cp.AuthenticatedIDs = append([]string(nil), state.AuthenticatedIDs...)
	m.mu.Lock()
	m.states[key] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, key string) (State, bool, error) {
	m.mu.RLock()
	state, ok := m.states[key]
	m.mu.RUnlock()
	if !ok {
		return State{}, false, nil
	}
	cp := state
	cp.AuthenticatedIDs = append([]string(nil), state.AuthenticatedIDs...)
	return cp, true, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.states, key)
	m.mu.Unlock()
	return nil
}
