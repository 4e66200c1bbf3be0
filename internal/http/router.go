// Package httpapi assembles the engine's HTTP surface. Authenticated routes
// trust the gateway-set identity headers; public routes serve anonymous
// signers and clients holding only a token or access code.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ronflow/internal/http/shared"
	"ronflow/pkg/platform/middleware/identity"
	"ronflow/pkg/platform/middleware/metadata"
	"ronflow/pkg/platform/middleware/requestid"
	"ronflow/pkg/platform/middleware/requesttime"
)

// Registrar mounts a module's authenticated routes.
type Registrar interface {
	Register(r chi.Router)
}

// PublicRegistrar mounts a module's anonymous routes.
type PublicRegistrar interface {
	RegisterPublic(r chi.Router)
}

// Deps carries everything the router mounts.
type Deps struct {
	Logger         *slog.Logger
	RequestTimeout time.Duration

	Documents   Registrar
	Tokens      Registrar
	Sessions    Registrar
	AccessCodes Registrar

	PublicDocuments   PublicRegistrar
	PublicTokens      PublicRegistrar
	PublicAccessCodes PublicRegistrar

	Health func(r *http.Request) error
}

// NewRouter builds the full route tree.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if deps.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(deps.RequestTimeout))
	}

	r.Get("/healthz", handleHealth(deps.Health))
	r.Handle("/metrics", promhttp.Handler())

	// Anonymous surface: signature submission and validation by token,
	// access code redemption by value.
	r.Group(func(r chi.Router) {
		if deps.PublicDocuments != nil {
			deps.PublicDocuments.RegisterPublic(r)
		}
		if deps.PublicTokens != nil {
			deps.PublicTokens.RegisterPublic(r)
		}
		if deps.PublicAccessCodes != nil {
			deps.PublicAccessCodes.RegisterPublic(r)
		}
	})

	// Everything else requires the gateway's identity headers.
	r.Group(func(r chi.Router) {
		r.Use(identity.RequireIdentity(deps.Logger))
		if deps.Documents != nil {
			deps.Documents.Register(r)
		}
		if deps.Tokens != nil {
			deps.Tokens.Register(r)
		}
		if deps.Sessions != nil {
			deps.Sessions.Register(r)
		}
		if deps.AccessCodes != nil {
			deps.AccessCodes.Register(r)
		}
	})

	return r
}

func handleHealth(check func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r); err != nil {
				shared.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
					"error":  err.Error(),
				})
				return
			}
		}
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
