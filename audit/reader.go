package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one audit record enriched for display. RefCode and IdentityName
// are resolved at read time; they are empty when the acting identity has been
// deleted out from under the log.
type Entry struct {
	ID           string
	AccountID    string
	IdentityID   *string
	Action       string
	Detail       map[string]any
	CreatedAt    time.Time
	RefCode      string
	IdentityName string
}

// Reader lists audit records with identity names resolved in one batch fetch.
type Reader struct {
	pool *pgxpool.Pool
}

// NewReader creates a PostgreSQL-backed audit reader.
func NewReader(pool *pgxpool.Pool) *Reader {
	return &Reader{pool: pool}
}

// ListRecent returns up to limit records for an account, newest first,
// with acting-identity reference codes and names attached.
func (r *Reader) ListRecent(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	const query = `
		SELECT id, account_id, identity_id, action, detail, created_at
		FROM audit_log
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e          Entry
			identityID *string
			detailRaw  []byte
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &identityID, &e.Action, &detailRaw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.IdentityID = identityID
		if len(detailRaw) > 0 {
			if err := json.Unmarshal(detailRaw, &e.Detail); err != nil {
				return nil, fmt.Errorf("audit: decode detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate: %w", err)
	}

	if err := r.resolveIdentities(ctx, entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// resolveIdentities batch-fetches every referenced identity once and fills in
// display fields from the lookup.
func (r *Reader) resolveIdentities(ctx context.Context, entries []Entry) error {
	seen := make(map[string]struct{})
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IdentityID == nil {
			continue
		}
		if _, ok := seen[*e.IdentityID]; ok {
			continue
		}
		seen[*e.IdentityID] = struct{}{}
		ids = append(ids, *e.IdentityID)
	}
	if len(ids) == 0 {
		return nil
	}

	const query = `
		SELECT id, ref_code, name
		FROM identities
		WHERE id = ANY($1)
	`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("audit: resolve identities: %w", err)
	}
	defer rows.Close()

	type display struct {
		refCode string
		name    string
	}
	lookup := make(map[string]display, len(ids))
	for rows.Next() {
		var id string
		var d display
		if err := rows.Scan(&id, &d.refCode, &d.name); err != nil {
			return fmt.Errorf("audit: scan identity: %w", err)
		}
		lookup[id] = d
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("audit: iterate identities: %w", err)
	}

	for i := range entries {
		if entries[i].IdentityID == nil {
			continue
		}
		if d, ok := lookup[*entries[i].IdentityID]; ok {
			entries[i].RefCode = d.refCode
			entries[i].IdentityName = d.name
		}
	}
	return nil
}
