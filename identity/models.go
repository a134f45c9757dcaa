package identity

import "time"

// Kind distinguishes the two parallel identity variants. They share one
// implementation; callers pick the variant at construction time.
type Kind string

const (
	KindAgent Kind = "agent"
	KindUser  Kind = "user"
)

// Role tags user-kind identities; agent-kind identities carry no role.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

// Identity is a secondary, PIN-protected identity owned by a primary account.
// The PIN is stored as a bcrypt hash; the plain four-digit value never leaves
// the create/authenticate paths.
type Identity struct {
	ID        string
	AccountID string
	Kind      Kind
	RefCode   string
	Name      string
	Phone     *string
	Email     *string
	PINHash   string
	Role      Role
	Active    bool
	CreatedAt time.Time
}

// CreateParams contains the caller-supplied fields for a new identity.
// RefCode is allocated server-side.
type CreateParams struct {
	AccountID string
	Kind      Kind
	Name      string
	Phone     *string
	Email     *string
	PIN       string
	Role      Role
}

// UpdateParams contains the mutable fields of an identity. Nil pointers leave
// the stored value unchanged; an empty PIN keeps the existing hash.
type UpdateParams struct {
	Name  *string
	Phone *string
	Email *string
	PIN   string
	Role  *Role
}

func isValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	default:
		return false
	}
}

// refCodePrefix returns the per-kind prefix used in human-facing codes,
// e.g. AGT0001 / USR0001.
func refCodePrefix(kind Kind) string {
	if kind == KindUser {
		return "USR"
	}
	return "AGT"
}
