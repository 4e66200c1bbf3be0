// Package user holds the minimal user collaborator the workflow engine needs.
// Account management lives upstream; the engine only resolves IDs to names,
// emails and roles for dangling-reference checks and share messages.
package user

import (
	"time"

	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
)

type User struct {
	ID        id.UserID `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      id.Role   `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func New(userID id.UserID, fullName, email string, role id.Role, now time.Time) (*User, error) {
	if fullName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user full name cannot be empty")
	}
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user email cannot be empty")
	}
	if !role.SigningRole() && role != id.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown user role")
	}
	return &User{
		ID:        userID,
		FullName:  fullName,
		Email:     email,
		Role:      role,
		CreatedAt: now,
	}, nil
}
