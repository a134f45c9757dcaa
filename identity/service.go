package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditRecorder captures action records. Implementations must never fail the
// calling operation; see the audit package.
type AuditRecorder interface {
	Record(ctx context.Context, accountID string, identityID *string, action string, detail map[string]any)
}

// Service exposes identity-management operations: the administrative surface
// behind the agent/user management pages.
type Service struct {
	repo        Repository
	audit       AuditRecorder
	logger      *zap.Logger
	idGenerator func() string
}

// NewService builds a Service using the provided repository. audit may be nil
// when management actions should not be recorded (tests).
func NewService(repo Repository, audit AuditRecorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		logger:      logger,
		idGenerator: func() string { return uuid.NewString() },
	}
}

// WithIDGenerator overrides identity ID generation, for deterministic tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// Create validates and inserts a new identity, hashing the PIN at rest.
func (s *Service) Create(ctx context.Context, params CreateParams) (Identity, error) {
	if params.AccountID == "" {
		return Identity{}, fmt.Errorf("identity: missing account id")
	}
	if params.Name == "" {
		return Identity{}, fmt.Errorf("identity: name required")
	}
	switch params.Kind {
	case KindAgent, KindUser:
	default:
		return Identity{}, fmt.Errorf("identity: invalid kind %q", params.Kind)
	}

	role := params.Role
	if params.Kind == KindUser {
		if role == "" {
			role = RoleUser
		}
		if !isValidRole(role) {
			return Identity{}, fmt.Errorf("identity: invalid role %q", role)
		}
	} else if role != "" {
		return Identity{}, fmt.Errorf("identity: agent identities carry no role")
	}

	pinHash, err := HashPIN(params.PIN)
	if err != nil {
		return Identity{}, err
	}

	created, err := s.repo.Create(ctx, Identity{
		ID:        s.idGenerator(),
		AccountID: params.AccountID,
		Kind:      params.Kind,
		Name:      params.Name,
		Phone:     params.Phone,
		Email:     params.Email,
		PINHash:   pinHash,
		Role:      role,
	})
	if err != nil {
		return Identity{}, err
	}

	if s.audit != nil {
		s.audit.Record(ctx, created.AccountID, &created.ID, "identity_created", map[string]any{
			"kind":     string(created.Kind),
			"ref_code": created.RefCode,
			"name":     created.Name,
		})
	}

	return created, nil
}

// Update applies the supplied changes to an identity owned by accountID.
func (s *Service) Update(ctx context.Context, accountID, id string, params UpdateParams) (Identity, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	if current.AccountID != accountID {
		return Identity{}, ErrNotFound
	}

	if params.Name != nil {
		if *params.Name == "" {
			return Identity{}, fmt.Errorf("identity: name required")
		}
		current.Name = *params.Name
	}
	if params.Phone != nil {
		current.Phone = params.Phone
	}
	if params.Email != nil {
		current.Email = params.Email
	}
	if params.Role != nil {
		if current.Kind != KindUser {
			return Identity{}, fmt.Errorf("identity: agent identities carry no role")
		}
		if !isValidRole(*params.Role) {
			return Identity{}, fmt.Errorf("identity: invalid role %q", *params.Role)
		}
		current.Role = *params.Role
	}
	if params.PIN != "" {
		hash, err := HashPIN(params.PIN)
		if err != nil {
			return Identity{}, err
		}
		current.PINHash = hash
	}

	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		return Identity{}, err
	}

	if s.audit != nil {
		s.audit.Record(ctx, updated.AccountID, &updated.ID, "identity_updated", map[string]any{
			"ref_code":    updated.RefCode,
			"pin_changed": params.PIN != "",
		})
	}

	return updated, nil
}

// Deactivate disables an identity so it disappears from selection lists.
func (s *Service) Deactivate(ctx context.Context, accountID, id string) error {
	if err := s.repo.Deactivate(ctx, accountID, id); err != nil {
		return err
	}

	if s.audit != nil {
		s.audit.Record(ctx, accountID, &id, "identity_deactivated", nil)
	}
	return nil
}
