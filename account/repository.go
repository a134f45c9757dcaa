package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that the account does not exist.
	ErrNotFound = errors.New("account: not found")
	// ErrDuplicateEmail signals that the email is already registered.
	ErrDuplicateEmail = errors.New("account: email already exists")
)

// Repository handles data access for primary accounts.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, accountID string) (Account, error)
}

// CreateParams contains write parameters for creating accounts.
type CreateParams struct {
	Email        string
	OrgName      string
	PasswordHash string
	Role         Role
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed account repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts a new account with hashed password.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Account, error) {
	const insertSQL = `
		INSERT INTO accounts (email, org_name, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, org_name, password_hash, phone, role, created_at, updated_at
	`

	acct, err := scanAccount(r.pool.QueryRow(ctx, insertSQL, params.Email, params.OrgName, params.PasswordHash, params.Role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrDuplicateEmail
		}
		return Account{}, fmt.Errorf("account: create: %w", err)
	}

	return acct, nil
}

// GetByEmail retrieves an account by email address.
func (r *PGRepository) GetByEmail(ctx context.Context, email string) (Account, error) {
	const selectSQL = `
		SELECT id, email, org_name, password_hash, phone, role, created_at, updated_at
		FROM accounts
		WHERE email = $1
	`

	acct, err := scanAccount(r.pool.QueryRow(ctx, selectSQL, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("account: get by email: %w", err)
	}

	return acct, nil
}

// GetByID retrieves an account by ID.
func (r *PGRepository) GetByID(ctx context.Context, accountID string) (Account, error) {
	const selectSQL = `
		SELECT id, email, org_name, password_hash, phone, role, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	acct, err := scanAccount(r.pool.QueryRow(ctx, selectSQL, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("account: get by id: %w", err)
	}

	return acct, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acct  Account
		phone *string
	)
	err := row.Scan(
		&acct.ID,
		&acct.Email,
		&acct.OrgName,
		&acct.PasswordHash,
		&phone,
		&acct.Role,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}

	acct.Phone = phone
	return acct, nil
}
