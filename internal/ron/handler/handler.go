package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ronflow/internal/http/shared"
	"ronflow/internal/ron/models"
	"ronflow/internal/ron/service"
	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
	"ronflow/pkg/requestcontext"
)

type Service interface {
	Schedule(ctx context.Context, docID id.DocumentID, scheduledFor time.Time) (*models.RonSession, error)
	RequestJoinCredential(ctx context.Context, sessionID id.SessionID) (*service.JoinGrant, error)
	Complete(ctx context.Context, sessionID id.SessionID, recordingRef, notes string) (*models.RonSession, error)
	Cancel(ctx context.Context, sessionID id.SessionID) (*models.RonSession, error)
	Get(ctx context.Context, sessionID id.SessionID) (*service.SessionDetail, error)
	ListForParticipant(ctx context.Context, userID id.UserID, statusFilter string) ([]*models.RonSession, error)
}

type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

type ScheduleRequest struct {
	DocumentID   string    `json:"document_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

type CompleteRequest struct {
	RecordingRef string `json:"recording_ref"`
	Notes        string `json:"notes"`
}

// Register mounts the session routes. All of them require identity.
func (h *Handler) Register(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.handleSchedule)
		r.Get("/", h.handleList)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/join", h.handleJoin)
			r.Post("/complete", h.handleComplete)
			r.Post("/cancel", h.handleCancel)
		})
	})
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	docID, err := id.ParseDocumentID(req.DocumentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	sess, err := h.service.Schedule(ctx, docID, req.ScheduledFor)
	if err != nil {
		h.logError(ctx, "session schedule failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessions, err := h.service.ListForParticipant(ctx, requestcontext.UserID(ctx), r.URL.Query().Get("status"))
	if err != nil {
		h.logError(ctx, "session list failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	detail, err := h.service.Get(ctx, sessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	grant, err := h.service.RequestJoinCredential(ctx, sessionID)
	if err != nil {
		h.logError(ctx, "session join failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, grant)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req CompleteRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
			return
		}
	}

	sess, err := h.service.Complete(ctx, sessionID, req.RecordingRef, req.Notes)
	if err != nil {
		h.logError(ctx, "session complete failed", err)
		// The session may have completed with certification left hanging;
		// surface the certification error but include the session state.
		if sess != nil {
			shared.WriteJSON(w, dErrors.HTTPStatus(dErrors.CodeOf(err)), map[string]any{
				"session": sess,
				"error":   string(dErrors.CodeOf(err)),
			})
			return
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	sess, err := h.service.Cancel(ctx, sessionID)
	if err != nil {
		h.logError(ctx, "session cancel failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sess)
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
