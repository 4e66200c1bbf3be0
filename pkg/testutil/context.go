package testutil

import (
	"net/http"

	id "ronflow/pkg/domain"
	"ronflow/pkg/requestcontext"
)

// WithUserID adds a user ID to the request context.
// This simulates what the auth middleware would do for authenticated requests.
// If the userID is not a valid UUID, it will not be added to the context.
func WithUserID(req *http.Request, userID string) *http.Request {
	if parsedUserID, err := id.ParseUserID(userID); err == nil {
		return req.WithContext(requestcontext.WithUserID(req.Context(), parsedUserID))
	}
	return req
}

// WithRole adds a caller role to the request context.
// Invalid roles are silently ignored.
func WithRole(req *http.Request, role string) *http.Request {
	if parsedRole, err := id.ParseRole(role); err == nil {
		return req.WithContext(requestcontext.WithRole(req.Context(), parsedRole))
	}
	return req
}

// WithAuth adds both user ID and role to the request context.
// This is the typical state for an authenticated request.
// Invalid values are silently ignored.
func WithAuth(req *http.Request, userID, role string) *http.Request {
	req = WithUserID(req, userID)
	return WithRole(req, role)
}
