// Package requestid assigns a correlation ID to every request. Incoming
// X-Request-ID headers are trusted (gateways set them); otherwise a fresh
// UUID is generated. The ID is echoed back on the response.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"ronflow/pkg/requestcontext"
)

const Header = "X-Request-ID"

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(Header)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(Header, reqID)
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
