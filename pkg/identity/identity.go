package identity

// Caller is the already-authenticated identity every operation receives.
// The gateway performs authentication; this core trusts its headers.
type Caller struct {
	UserID string
	Email  string
	Role   Role
}

type Role string

const (
	RoleUser     Role = "USER"
	RoleOperator Role = "OPERATOR"
	RoleAuditor  Role = "AUDITOR"
	RoleAdmin    Role = "ADMIN"
)

// Privileged reports whether the role may read other users' claim history
// and drive fulfillment transitions.
func (r Role) Privileged() bool {
	switch r {
	case RoleOperator, RoleAuditor, RoleAdmin:
		return true
	default:
		return false
	}
}
