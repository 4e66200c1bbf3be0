package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ronflow/internal/accesscode/models"
	"ronflow/internal/accesscode/service"
	"ronflow/internal/http/shared"
	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
	"ronflow/pkg/requestcontext"
)

type Service interface {
	Issue(ctx context.Context, sessionID id.SessionID) (*service.IssuedCode, error)
	Redeem(ctx context.Context, value string) (*service.RedeemedAccess, error)
	Peek(ctx context.Context, value string) (*service.PeekResult, error)
	Regenerate(ctx context.Context, sessionID id.SessionID) (*service.IssuedCode, error)
	ListForCertifier(ctx context.Context, statusFilter string) ([]*models.ClientAccessCode, error)
	Stats(ctx context.Context) (*service.Stats, error)
}

type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

type IssueRequest struct {
	SessionID string `json:"session_id"`
}

// Register mounts the certifier-facing code management routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/access-codes", func(r chi.Router) {
		r.Post("/", h.handleIssue)
		r.Get("/", h.handleList)
		r.Get("/stats", h.handleStats)
		r.Post("/regenerate", h.handleRegenerate)
	})
}

// RegisterPublic mounts redemption. Clients hold only the code value, not a
// platform identity.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/access-codes/{value}/redeem", h.handleRedeem)
	r.Get("/access-codes/{value}", h.handlePeek)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	sessionID, err := id.ParseSessionID(req.SessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	issued, err := h.service.Issue(ctx, sessionID)
	if err != nil {
		h.logError(ctx, "code issue failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, issued)
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	access, err := h.service.Redeem(ctx, chi.URLParam(r, "value"))
	if err != nil {
		h.logError(ctx, "code redeem failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, access)
}

func (h *Handler) handlePeek(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Peek(r.Context(), chi.URLParam(r, "value"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	sessionID, err := id.ParseSessionID(req.SessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	issued, err := h.service.Regenerate(ctx, sessionID)
	if err != nil {
		h.logError(ctx, "code regenerate failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, issued)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	codes, err := h.service.ListForCertifier(ctx, r.URL.Query().Get("status"))
	if err != nil {
		h.logError(ctx, "code list failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, codes)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.service.Stats(ctx)
	if err != nil {
		h.logError(ctx, "code stats failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	h.logger.WarnContext(ctx, msg, attrs...)
}
