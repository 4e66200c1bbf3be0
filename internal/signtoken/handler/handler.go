package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ronflow/internal/http/shared"
	"ronflow/internal/signtoken/models"
	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
	"ronflow/pkg/requestcontext"
)

type Service interface {
	Issue(ctx context.Context, docID id.DocumentID, userID id.UserID, role id.Role) (*models.SignatureToken, error)
	Validate(ctx context.Context, value string) (*models.SignatureToken, error)
}

type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// IssueRequest mints a signature token for a document party.
type IssueRequest struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
}

// Register mounts the authenticated token routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/signature-tokens", h.handleIssue)
}

// RegisterPublic mounts the anonymous token check. Signers hold only the
// token value, not a platform identity.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/signature-tokens/{value}", h.handleValidate)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	docID, err := id.ParseDocumentID(req.DocumentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	role, err := id.ParseRole(req.Role)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	token, err := h.service.Issue(ctx, docID, userID, role)
	if err != nil {
		h.logger.WarnContext(ctx, "token issue rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, token)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, err := h.service.Validate(ctx, chi.URLParam(r, "value"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	// The image-less response tells the frontend who is signing what.
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"document_id": token.DocumentID,
		"user_id":     token.UserID,
		"role":        token.Role,
		"expires_at":  token.ExpiresAt,
	})
}
