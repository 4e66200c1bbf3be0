package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ronflow/internal/document/models"
	"ronflow/internal/document/service"
	"ronflow/internal/http/shared"
	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
	"ronflow/pkg/requestcontext"
)

// Service defines the document operations the handler exposes.
type Service interface {
	CreateFromTemplate(ctx context.Context, templateID id.TemplateID, title string, clientID, certifierID id.UserID, vars map[string]string) (*models.Document, []service.IssuedSigningToken, error)
	CreateUpload(ctx context.Context, title, body string, clientID, certifierID id.UserID) (*models.Document, error)
	RequestChanges(ctx context.Context, docID id.DocumentID, callerID id.UserID, newBody string) (*models.Document, error)
	SendForSignature(ctx context.Context, docID id.DocumentID, callerID id.UserID) (*models.Document, error)
	SubmitSignature(ctx context.Context, token, imageData string) (*models.Document, *models.Signature, error)
	Certify(ctx context.Context, docID id.DocumentID, certifierID id.UserID, notes string) (*models.Document, error)
	Reject(ctx context.Context, docID id.DocumentID, certifierID id.UserID, reason string) (*models.Document, error)
	BatchApply(ctx context.Context, certifierID id.UserID, action service.BatchAction, docIDs []id.DocumentID, reason string) ([]service.BatchResult, error)
	Get(ctx context.Context, docID id.DocumentID, callerID id.UserID) (*models.Document, error)
	GetSignatures(ctx context.Context, docID id.DocumentID, callerID id.UserID) ([]*models.Signature, error)
	GetArtifact(ctx context.Context, docID id.DocumentID, callerID id.UserID) ([]byte, error)
	ListPendingCertification(ctx context.Context, certifierID id.UserID) ([]*models.Document, error)
	ListForParticipant(ctx context.Context, userID id.UserID) ([]*models.Document, error)
	CreateTemplate(ctx context.Context, name, body string) (*models.Template, error)
	ListTemplates(ctx context.Context) ([]*models.Template, error)
}

// Handler exposes the document workflow over HTTP.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register mounts the authenticated document routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Post("/from-template", h.handleCreateFromTemplate)
		r.Post("/upload", h.handleUpload)
		r.Post("/batch", h.handleBatch)
		r.Get("/", h.handleList)
		r.Get("/pending-certification", h.handlePending)
		r.Route("/{documentID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Get("/signatures", h.handleGetSignatures)
			r.Get("/artifact", h.handleGetArtifact)
			r.Put("/content", h.handleReplaceContent)
			r.Post("/send", h.handleSend)
			r.Post("/certify", h.handleCertify)
			r.Post("/reject", h.handleReject)
		})
	})
	r.Route("/templates", func(r chi.Router) {
		r.Post("/", h.handleCreateTemplate)
		r.Get("/", h.handleListTemplates)
	})
}

// RegisterPublic mounts routes reachable without a forwarded identity.
// Signature submission authenticates through its token.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/signatures", h.handleSubmitSignature)
}

func (h *Handler) handleCreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateFromTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	templateID, err := id.ParseTemplateID(req.TemplateID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	clientID, err := id.ParseUserID(req.ClientID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	certifierID, err := id.ParseUserID(req.CertifierID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	doc, tokens, err := h.service.CreateFromTemplate(ctx, templateID, req.Title, clientID, certifierID, req.Variables)
	if err != nil {
		h.logError(ctx, "create document from template", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, CreatedDocumentResponse{Document: doc, Tokens: tokens})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	clientID, err := id.ParseUserID(req.ClientID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	certifierID, err := id.ParseUserID(req.CertifierID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	doc, err := h.service.CreateUpload(ctx, req.Title, req.Body, clientID, certifierID)
	if err != nil {
		h.logError(ctx, "upload document", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docs, err := h.service.ListForParticipant(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logError(ctx, "list documents", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, docs)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docs, err := h.service.ListPendingCertification(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logError(ctx, "list pending certification", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, docs)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	doc, err := h.service.Get(ctx, docID, requestcontext.UserID(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleGetSignatures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	sigs, err := h.service.GetSignatures(ctx, docID, requestcontext.UserID(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sigs)
}

func (h *Handler) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	artifact, err := h.service.GetArtifact(ctx, docID, requestcontext.UserID(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact)
}

func (h *Handler) handleReplaceContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req ReplaceContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	doc, err := h.service.RequestChanges(ctx, docID, requestcontext.UserID(ctx), req.Body)
	if err != nil {
		h.logError(ctx, "replace document content", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	doc, err := h.service.SendForSignature(ctx, docID, requestcontext.UserID(ctx))
	if err != nil {
		h.logError(ctx, "send document for signature", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleSubmitSignature(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SubmitSignatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	doc, sig, err := h.service.SubmitSignature(ctx, req.Token, req.ImageData)
	if err != nil {
		h.logError(ctx, "submit signature", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"document":  doc,
		"signature": sig,
	})
}

func (h *Handler) handleCertify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req DecisionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
			return
		}
	}
	doc, err := h.service.Certify(ctx, docID, requestcontext.UserID(ctx), req.Notes)
	if err != nil {
		h.logError(ctx, "certify document", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	doc, err := h.service.Reject(ctx, docID, requestcontext.UserID(ctx), req.Reason)
	if err != nil {
		h.logError(ctx, "reject document", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	docIDs := make([]id.DocumentID, 0, len(req.DocumentIDs))
	for _, raw := range req.DocumentIDs {
		docID, err := id.ParseDocumentID(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		docIDs = append(docIDs, docID)
	}

	results, err := h.service.BatchApply(ctx, requestcontext.UserID(ctx), service.BatchAction(req.Action), docIDs, req.Reason)
	if err != nil {
		h.logError(ctx, "batch document action", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	tmpl, err := h.service.CreateTemplate(ctx, req.Name, req.Body)
	if err != nil {
		h.logError(ctx, "create template", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, tmpl)
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tmpls, err := h.service.ListTemplates(ctx)
	if err != nil {
		h.logError(ctx, "list templates", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, tmpls)
}

func (h *Handler) logError(ctx context.Context, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "document operation failed",
			"op", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return
	}
	h.logger.WarnContext(ctx, "document operation rejected",
		"op", op,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
