package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"supportdesk/identity"
)

// Manager creates and tracks sessions per client session ID and identity
// kind, and tears them down on logout. It replaces ambient global state with
// one injected object owning the init and teardown lifecycle.
type Manager struct {
	hub    *identity.Hub
	store  StateStore
	audit  AuditRecorder
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager wires a manager over the registry hub and state store.
func NewManager(hub *identity.Hub, store StateStore, audit AuditRecorder, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		hub:      hub,
		store:    store,
		audit:    audit,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// managerKey scopes cached sessions per kind, account, and client session. A
// session ID presented under a different primary account maps to a different
// session, never to another tenant's selection state.
func managerKey(accountID, sessionID string, kind identity.Kind) string {
	return string(kind) + "/" + accountID + "/" + sessionID
}

// Session returns the session for a client and kind, creating and restoring
// it on first use. Restore failures are logged; the session starts clean.
func (m *Manager) Session(ctx context.Context, sessionID, accountID string, kind identity.Kind) *Session {
	m.mu.Lock()
	sess, ok := m.sessions[managerKey(accountID, sessionID, kind)]
	m.mu.Unlock()
	if ok {
		return sess
	}

	reg := m.hub.ForAccount(ctx, accountID, kind)
	sess = New(sessionID, accountID, kind, reg, m.store, m.audit, m.logger)
	if err := sess.Restore(ctx); err != nil {
		m.logger.Warn("session restore failed, starting clean",
			zap.String("session_id", sessionID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}

	m.mu.Lock()
	// Another request may have created it concurrently; keep the first.
	if existing, ok := m.sessions[managerKey(accountID, sessionID, kind)]; ok {
		sess = existing
	} else {
		m.sessions[managerKey(accountID, sessionID, kind)] = sess
	}
	m.mu.Unlock()
	return sess
}

// Logout resets both identity overlays of a client session and drops the
// account's cached registries. All persisted state keys are removed.
func (m *Manager) Logout(ctx context.Context, sessionID, accountID string) {
	for _, kind := range []identity.Kind{identity.KindAgent, identity.KindUser} {
		key := managerKey(accountID, sessionID, kind)
		m.mu.Lock()
		sess, ok := m.sessions[key]
		delete(m.sessions, key)
		m.mu.Unlock()

		if !ok {
			// Never instantiated this run; still clear any persisted state.
			sess = New(sessionID, accountID, kind, nil, m.store, nil, m.logger)
		}
		if err := sess.Reset(ctx); err != nil {
			m.logger.Warn("session teardown failed",
				zap.String("session_id", sessionID),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}
	m.hub.Drop(accountID)
}
