package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the requested identity does not exist.
	ErrNotFound = errors.New("identity: not found")
)

// Repository handles data access for secondary identities.
type Repository interface {
	ListActive(ctx context.Context, accountID string, kind Kind) ([]Identity, error)
	GetByID(ctx context.Context, id string) (Identity, error)
	Create(ctx context.Context, ident Identity) (Identity, error)
	Update(ctx context.Context, ident Identity) (Identity, error)
	Deactivate(ctx context.Context, accountID, id string) error
}

const identityColumns = `id, account_id, kind, ref_code, name, phone, email, pin_hash, role, active, created_at`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed identity repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListActive returns the active identities of one kind for an account,
// ordered by name. Inactive identities never appear in selection lists.
func (r *PGRepository) ListActive(ctx context.Context, accountID string, kind Kind) ([]Identity, error) {
	const query = `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE account_id = $1 AND kind = $2 AND active = true
		ORDER BY name ASC
	`

	rows, err := r.pool.Query(ctx, query, accountID, kind)
	if err != nil {
		return nil, fmt.Errorf("identity: list active: %w", err)
	}
	defer rows.Close()

	out := make([]Identity, 0, 8)
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("identity: scan: %w", err)
		}
		out = append(out, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity: iterate: %w", err)
	}
	return out, nil
}

// GetByID retrieves a single identity regardless of active flag.
func (r *PGRepository) GetByID(ctx context.Context, id string) (Identity, error) {
	const query = `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE id = $1
	`

	ident, err := scanIdentity(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrNotFound
		}
		return Identity{}, fmt.Errorf("identity: get by id: %w", err)
	}
	return ident, nil
}

// Create inserts an identity, allocating its per-account reference code in
// the same transaction so codes stay gapless per account and kind.
func (r *PGRepository) Create(ctx context.Context, ident Identity) (Identity, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var seq int
	const allocSQL = `
		INSERT INTO ref_code_counters (account_id, kind, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (account_id, kind)
		DO UPDATE SET value = ref_code_counters.value + 1
		RETURNING value
	`
	if err := tx.QueryRow(ctx, allocSQL, ident.AccountID, ident.Kind).Scan(&seq); err != nil {
		return Identity{}, fmt.Errorf("identity: allocate ref code: %w", err)
	}
	ident.RefCode = fmt.Sprintf("%s%04d", refCodePrefix(ident.Kind), seq)

	const insertSQL = `
		INSERT INTO identities (id, account_id, kind, ref_code, name, phone, email, pin_hash, role, active)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, true)
		RETURNING ` + identityColumns + `
	`
	created, err := scanIdentity(tx.QueryRow(ctx, insertSQL,
		ident.ID,
		ident.AccountID,
		ident.Kind,
		ident.RefCode,
		ident.Name,
		ident.Phone,
		ident.Email,
		ident.PINHash,
		nullableRole(ident.Role),
	))
	if err != nil {
		return Identity{}, fmt.Errorf("identity: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Identity{}, fmt.Errorf("identity: commit: %w", err)
	}
	return created, nil
}

// Update rewrites the mutable columns of an identity.
func (r *PGRepository) Update(ctx context.Context, ident Identity) (Identity, error) {
	const updateSQL = `
		UPDATE identities
		SET name = $2, phone = $3, email = $4, pin_hash = $5, role = $6
		WHERE id = $1 AND account_id = $7
		RETURNING ` + identityColumns + `
	`

	updated, err := scanIdentity(r.pool.QueryRow(ctx, updateSQL,
		ident.ID,
		ident.Name,
		ident.Phone,
		ident.Email,
		ident.PINHash,
		nullableRole(ident.Role),
		ident.AccountID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrNotFound
		}
		return Identity{}, fmt.Errorf("identity: update: %w", err)
	}
	return updated, nil
}

// Deactivate soft-deletes an identity. The row is kept so audit entries can
// still resolve its name and reference code.
func (r *PGRepository) Deactivate(ctx context.Context, accountID, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE identities SET active = false WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return fmt.Errorf("identity: deactivate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanIdentity(row pgx.Row) (Identity, error) {
	var (
		ident Identity
		phone *string
		email *string
		role  *string
	)
	err := row.Scan(
		&ident.ID,
		&ident.AccountID,
		&ident.Kind,
		&ident.RefCode,
		&ident.Name,
		&phone,
		&email,
		&ident.PINHash,
		&role,
		&ident.Active,
		&ident.CreatedAt,
	)
	if err != nil {
		return Identity{}, err
	}

	ident.Phone = phone
	ident.Email = email
	if role != nil {
		ident.Role = Role(*role)
	}
	return ident, nil
}

func nullableRole(role Role) *string {
	if role == "" {
		return nil
	}
	s := string(role)
	return &s
}
