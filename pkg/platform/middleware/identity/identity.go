// Package identity resolves the calling user for workflow operations.
//
// The engine runs behind the platform gateway, which authenticates users and
// forwards their identity in trusted headers. This middleware parses those
// headers into the request context; services never see HTTP.
package identity

import (
	"fmt"
	"log/slog"
	"net/http"

	id "ronflow/pkg/domain"
	"ronflow/pkg/requestcontext"
)

const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireIdentity rejects requests without a valid forwarded identity.
// Routes that accept anonymous callers (access-code redemption, token
// validation) are mounted outside this middleware.
func RequireIdentity(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			userID, err := id.ParseUserID(r.Header.Get(HeaderUserID))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - missing or invalid user header",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid identity")
				return
			}

			role, err := id.ParseRole(r.Header.Get(HeaderRole))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - missing or invalid role header",
					"request_id", requestcontext.RequestID(ctx),
					"user_id", userID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid role")
				return
			}

			ctx = requestcontext.WithUserID(ctx, userID)
			ctx = requestcontext.WithRole(ctx, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
