package identity

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"supportdesk/notify"
)

// Hub hands out per-account, per-kind registries and routes change events to
// them. It is the single subscription consumer: one listener feeds Run, which
// invalidates and reloads exactly the registries an event touches.
type Hub struct {
	repo   Repository
	logger *zap.Logger

	mu   sync.Mutex
	regs map[string]*Registry
}

// NewHub builds a hub over the given repository.
func NewHub(repo Repository, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		repo:   repo,
		logger: logger,
		regs:   make(map[string]*Registry),
	}
}

func hubKey(accountID string, kind Kind) string {
	return accountID + "/" + string(kind)
}

// ForAccount returns the registry for one account and kind, creating and
// loading it on first use. A failed initial load still returns the registry:
// the list is empty and the next change event or explicit Load retries.
func (h *Hub) ForAccount(ctx context.Context, accountID string, kind Kind) *Registry {
	h.mu.Lock()
	reg, ok := h.regs[hubKey(accountID, kind)]
	if !ok {
		reg = NewRegistry(h.repo, accountID, kind, h.logger)
		h.regs[hubKey(accountID, kind)] = reg
	}
	h.mu.Unlock()

	if !ok {
		// Load errors are logged inside Load and are non-fatal here.
		_ = reg.Load(ctx)
	}
	return reg
}

// Drop discards the cached registries for an account, e.g. on logout.
func (h *Hub) Drop(accountID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.regs, hubKey(accountID, KindAgent))
	delete(h.regs, hubKey(accountID, KindUser))
}

// Run consumes change events until ctx is done or the channel closes,
// reloading every registry an event's account touches.
func (h *Hub) Run(ctx context.Context, events <-chan notify.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Table != notify.TableIdentities {
				continue
			}
			for _, reg := range h.matching(ev.AccountID) {
				// New generation first, so the reload cannot coalesce onto a
				// read that started before this change committed.
				reg.Invalidate()
				_ = reg.Load(ctx)
			}
		}
	}
}

func (h *Hub) matching(accountID string) []*Registry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Registry, 0, 2)
	for _, kind := range []Kind{KindAgent, KindUser} {
		if reg, ok := h.regs[hubKey(accountID, kind)]; ok {
			out = append(out, reg)
		}
	}
	if accountID == "" {
		// Event without account routing reloads everything.
		out = out[:0]
		for _, reg := range h.regs {
			out = append(out, reg)
		}
	}
	return out
}
