package domain

import dErrors "ronflow/pkg/domain-errors"

// Role is the closed set of participant roles. Authorization points switch
// exhaustively over this type; adding a role is a compile-time-checked change.
type Role string

const (
	RoleClient    Role = "client"
	RoleCertifier Role = "certifier"
	RoleAdmin     Role = "admin"
)

// SigningRoles are the roles whose signatures a document requires.
var SigningRoles = []Role{RoleClient, RoleCertifier}

// ParseRole validates a raw role string against the closed set.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleClient, RoleCertifier, RoleAdmin:
		return Role(raw), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role: "+raw)
	}
}

// CanCertify reports whether the role may certify documents and run sessions.
func (r Role) CanCertify() bool {
	switch r {
	case RoleCertifier, RoleAdmin:
		return true
	case RoleClient:
		return false
	default:
		return false
	}
}

// SigningRole reports whether the role is one of the two signing parties.
func (r Role) SigningRole() bool {
	return r == RoleClient || r == RoleCertifier
}
