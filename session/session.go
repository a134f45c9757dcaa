package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"supportdesk/identity"
)

var (
	// ErrNotAuthenticated signals an attempt to select an identity that has
	// not passed a PIN challenge in this session.
	ErrNotAuthenticated = errors.New("session: identity not authenticated")
)

// IdentityLookup resolves identities from the in-memory registry; a PIN check
// never triggers its own backend fetch.
type IdentityLookup interface {
	Find(id string) (identity.Identity, bool)
}

// AuditRecorder captures action records without ever failing the caller.
type AuditRecorder interface {
	Record(ctx context.Context, accountID string, identityID *string, action string, detail map[string]any)
}

// Session scopes an acting secondary identity to one client session and one
// identity kind. All state transitions go through it: an identity becomes
// current only after Authenticate, or via SetCurrent once already in the
// authenticated set.
type Session struct {
	id        string
	accountID string
	kind      identity.Kind
	lookup    IdentityLookup
	store     StateStore
	audit     AuditRecorder
	logger    *zap.Logger

	mu               sync.Mutex
	current          string
	authenticated    map[string]struct{}
	identityRequired bool
}

// New creates a session with the identity-required gate enabled. Call Restore
// to rehydrate persisted state.
func New(id, accountID string, kind identity.Kind, lookup IdentityLookup, store StateStore, audit AuditRecorder, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		id:               id,
		accountID:        accountID,
		kind:             kind,
		lookup:           lookup,
		store:            store,
		audit:            audit,
		logger:           logger,
		authenticated:    make(map[string]struct{}),
		identityRequired: true,
	}
}

// storageKey scopes persisted state per kind, account, and session; a cookie
// replayed under another primary account must never resolve to this state.
func (s *Session) storageKey() string {
	return string(s.kind) + ":" + s.accountID + ":" + s.id
}

// Restore rehydrates the selection and authenticated set from the store.
// A missing record is a clean slate, not an error.
func (s *Session) Restore(ctx context.Context) error {
	state, ok, err := s.store.Load(ctx, s.storageKey())
	if err != nil {
		return fmt.Errorf("session: restore: %w", err)
	}
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = make(map[string]struct{}, len(state.AuthenticatedIDs))
	for _, id := range state.AuthenticatedIDs {
		s.authenticated[id] = struct{}{}
	}
	s.current = ""
	if state.CurrentIdentityID != "" {
		if _, ok := s.authenticated[state.CurrentIdentityID]; ok {
			s.current = state.CurrentIdentityID
		} else {
			s.logger.Warn("restored selection not in authenticated set, dropping",
				zap.String("identity_id", state.CurrentIdentityID))
		}
	}
	return nil
}

// Authenticate runs the PIN challenge for identityID. It reports whether the
// PIN matched; a mismatch mutates nothing. On a match the identity joins the
// authenticated set, becomes current, state is persisted, and two audit
// records are written: one for the challenge, one for acting-as attribution.
func (s *Session) Authenticate(ctx context.Context, identityID, pin string) bool {
	ident, ok := s.lookup.Find(identityID)
	if !ok {
		return false
	}
	if !identity.VerifyPIN(ident.PINHash, pin) {
		return false
	}

	s.mu.Lock()
	s.authenticated[identityID] = struct{}{}
	s.current = identityID
	s.mu.Unlock()

	s.persist(ctx)

	if s.audit != nil {
		s.audit.Record(ctx, s.accountID, &identityID, "identity_authenticated", map[string]any{
			"kind":     string(s.kind),
			"ref_code": ident.RefCode,
		})
		s.audit.Record(ctx, s.accountID, &identityID, "acting_as", map[string]any{
			"kind": string(s.kind),
			"name": ident.Name,
		})
	}
	return true
}

// SetCurrent switches the acting identity to one already in the authenticated
// set, or clears it when identityID is empty. Selecting an unauthenticated
// identity is rejected and leaves the current selection unchanged.
func (s *Session) SetCurrent(ctx context.Context, identityID string) error {
	s.mu.Lock()
	if identityID != "" {
		if _, ok := s.authenticated[identityID]; !ok {
			s.mu.Unlock()
			s.logger.Warn("rejected selection of unauthenticated identity",
				zap.String("identity_id", identityID),
				zap.String("kind", string(s.kind)))
			return ErrNotAuthenticated
		}
	}
	s.current = identityID
	s.mu.Unlock()

	s.persist(ctx)

	if s.audit != nil {
		var idPtr *string
		detail := map[string]any{"kind": string(s.kind)}
		if identityID != "" {
			idPtr = &identityID
		} else {
			detail["cleared"] = true
		}
		s.audit.Record(ctx, s.accountID, idPtr, "identity_selected", detail)
	}
	return nil
}

// Current returns the acting identity ID, or empty when none is selected.
func (s *Session) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// IsAuthenticated reports whether identityID has passed a PIN challenge in
// this session.
func (s *Session) IsAuthenticated(identityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.authenticated[identityID]
	return ok
}

// AuthenticatedIDs returns the authenticated set in stable order.
func (s *Session) AuthenticatedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.authenticated))
	for id := range s.authenticated {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IdentityRequired reports whether the gate is active for this session.
func (s *Session) IdentityRequired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identityRequired
}

// SetIdentityRequired toggles the gate.
func (s *Session) SetIdentityRequired(required bool) {
	s.mu.Lock()
	s.identityRequired = required
	s.mu.Unlock()
}

// SuppressRequirement disables the gate and returns a closure restoring the
// previous value. Identity-management surfaces use it so administrators can
// reach them without an acting identity.
func (s *Session) SuppressRequirement() func() {
	s.mu.Lock()
	prev := s.identityRequired
	s.identityRequired = false
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.identityRequired = prev
		s.mu.Unlock()
	}
}

// Reset clears the selection, the authenticated set, and the persisted state.
// Called on primary-account logout.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.current = ""
	s.authenticated = make(map[string]struct{})
	s.mu.Unlock()

	if err := s.store.Delete(ctx, s.storageKey()); err != nil {
		return fmt.Errorf("session: reset: %w", err)
	}
	return nil
}

// persist snapshots state to the store. Persistence failures degrade to
// in-memory-only state for this session; they are logged, not propagated.
func (s *Session) persist(ctx context.Context) {
	s.mu.Lock()
	state := State{CurrentIdentityID: s.current}
	for id := range s.authenticated {
		state.AuthenticatedIDs = append(state.AuthenticatedIDs, id)
	}
	s.mu.Unlock()
	sort.Strings(state.AuthenticatedIDs)

	if err := s.store.Save(ctx, s.storageKey(), state); err != nil {
		s.logger.Warn("session state persist failed",
			zap.String("session_id", s.id),
			zap.String("kind", string(s.kind)),
			zap.Error(err))
	}
}
