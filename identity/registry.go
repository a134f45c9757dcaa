package identity

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Registry holds the active identities of one kind for one account and keeps
// the list fresh. Change events trigger full idempotent reloads; overlapping
// triggers are collapsed so a burst of events produces one consistent final
// list.
type Registry struct {
	repo      Repository
	accountID string
	kind      Kind
	logger    *zap.Logger

	group singleflight.Group

	mu         sync.RWMutex
	identities []Identity
	loading    bool
	gen        uint64
}

// NewRegistry builds a registry scoped to one account and kind.
func NewRegistry(repo Repository, accountID string, kind Kind, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		repo:      repo,
		accountID: accountID,
		kind:      kind,
		logger:    logger,
	}
}

// Load replaces the cached list with a fresh read. On failure the list is
// cleared and the error returned; callers surface it and move on, the
// registry stays usable. Concurrent loads of the same generation coalesce;
// Invalidate starts a new generation so a reload never coalesces onto a read
// that began before the change committed.
func (r *Registry) Load(ctx context.Context) error {
	r.setLoading(true)
	defer r.setLoading(false)

	r.mu.RLock()
	gen := r.gen
	r.mu.RUnlock()

	_, err, _ := r.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		idents, err := r.repo.ListActive(ctx, r.accountID, r.kind)
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.gen != gen {
			// Superseded by a newer invalidation; its reload owns the cache.
			return nil, err
		}
		if err != nil {
			r.identities = nil
			return nil, err
		}
		r.identities = idents
		return nil, nil
	})
	if err != nil {
		r.logger.Warn("identity registry load failed",
			zap.String("account_id", r.accountID),
			zap.String("kind", string(r.kind)),
			zap.Error(err))
	}
	return err
}

// Invalidate marks the cached list stale. The next Load runs under a new
// generation and hits the backend even while an older read is in flight.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.gen++
	r.mu.Unlock()
}

// Identities returns a copy of the cached active list.
func (r *Registry) Identities() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Identity, len(r.identities))
	copy(out, r.identities)
	return out
}

// Find looks up a cached identity by ID without touching the backend.
func (r *Registry) Find(id string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ident := range r.identities {
		if ident.ID == id {
			return ident, true
		}
	}
	return Identity{}, false
}

// Loading reports whether a reload is in flight.
func (r *Registry) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// Clear drops the cached list, e.g. on primary-account logout.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities = nil
}

func (r *Registry) setLoading(v bool) {
	r.mu.Lock()
	r.loading = v
	r.mu.Unlock()
}
