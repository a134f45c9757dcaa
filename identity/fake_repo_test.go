package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// fakeRepository is an in-memory Repository shared by the unit tests in this
// package.
type fakeRepository struct {
	mu       sync.Mutex
	byID     map[string]Identity
	counters map[string]int
	listErr  error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		byID:     make(map[string]Identity),
		counters: make(map[string]int),
	}
}

func (f *fakeRepository) ListActive(ctx context.Context, accountID string, kind Kind) ([]Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}

	out := make([]Identity, 0, len(f.byID))
	for _, ident := range f.byID {
		if ident.AccountID == accountID && ident.Kind == kind && ident.Active {
			out = append(out, ident)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRepository) GetByID(ctx context.Context, id string) (Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ident, ok := f.byID[id]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return ident, nil
}

func (f *fakeRepository) Create(ctx context.Context, ident Identity) (Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := ident.AccountID + "/" + string(ident.Kind)
	f.counters[key]++
	ident.RefCode = fmt.Sprintf("%s%04d", refCodePrefix(ident.Kind), f.counters[key])
	ident.Active = true
	ident.CreatedAt = time.Now().UTC()
	if ident.ID == "" {
		ident.ID = fmt.Sprintf("ident-%d", len(f.byID)+1)
	}

	f.byID[ident.ID] = ident
	return ident, nil
}

func (f *fakeRepository) Update(ctx context.Context, ident Identity) (Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.byID[ident.ID]
	if !ok || current.AccountID != ident.AccountID {
		return Identity{}, ErrNotFound
	}
	ident.RefCode = current.RefCode
	ident.Active = current.Active
	ident.CreatedAt = current.CreatedAt
	f.byID[ident.ID] = ident
	return ident, nil
}

func (f *fakeRepository) Deactivate(ctx context.Context, accountID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ident, ok := f.byID[id]
	if !ok || ident.AccountID != accountID {
		return ErrNotFound
	}
	ident.Active = false
	f.byID[id] = ident
	return nil
}

func (f *fakeRepository) setListError(err error) {
	f.mu.Lock()
	f.listErr = err
	f.mu.Unlock()
}
