package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"ronflow/internal/capability/pdf"
	docmetrics "ronflow/internal/document/metrics"
	"ronflow/internal/document/models"
	"ronflow/internal/user"
	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
	"ronflow/pkg/platform/audit"
	"ronflow/pkg/platform/sentinel"
	"ronflow/pkg/requestcontext"
)

// DocumentStore is the persistence boundary for documents.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	Execute(ctx context.Context, docID id.DocumentID, validate func(*models.Document) error, mutate func(*models.Document)) (*models.Document, error)
	ListPendingCertification(ctx context.Context, certifierID id.UserID) ([]*models.Document, error)
	ListByParticipant(ctx context.Context, userID id.UserID) ([]*models.Document, error)
}

// SignatureStore records signature captures.
type SignatureStore interface {
	Record(ctx context.Context, sig *models.Signature) error
	ListEffective(ctx context.Context, docID id.DocumentID) ([]*models.Signature, error)
	ListByDocument(ctx context.Context, docID id.DocumentID) ([]*models.Signature, error)
}

// TemplateStore resolves document templates.
type TemplateStore interface {
	Save(ctx context.Context, t *models.Template) error
	FindByID(ctx context.Context, templateID id.TemplateID) (*models.Template, error)
	List(ctx context.Context) ([]*models.Template, error)
}

// SignatureGrant is the resolved claim behind a signature token.
type SignatureGrant struct {
	DocumentID id.DocumentID
	UserID     id.UserID
	Role       id.Role
}

// TokenValidator resolves an opaque signature token into its grant.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*SignatureGrant, error)
}

// IssuedSigningToken is the per-party signing credential handed out when a
// workflow document is created.
type IssuedSigningToken struct {
	Value     string    `json:"value"`
	Role      id.Role   `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenIssuer mints signing credentials for a document party.
type TokenIssuer interface {
	IssueFor(ctx context.Context, docID id.DocumentID, userID id.UserID, role id.Role) (*IssuedSigningToken, error)
}

// Service orchestrates the document workflow for both branches.
type Service struct {
	documents  DocumentStore
	signatures SignatureStore
	templates  TemplateStore
	users      user.Store
	tokens     TokenValidator
	issuer     TokenIssuer
	renderer   pdf.Renderer
	artifacts  pdf.ArtifactStore

	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *docmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *docmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTokenValidator(v TokenValidator) Option {
	return func(s *Service) { s.tokens = v }
}

func WithTokenIssuer(i TokenIssuer) Option {
	return func(s *Service) { s.issuer = i }
}

// New constructs a Service.
func New(documents DocumentStore, signatures SignatureStore, templates TemplateStore, users user.Store, renderer pdf.Renderer, artifacts pdf.ArtifactStore, opts ...Option) *Service {
	s := &Service{
		documents:      documents,
		signatures:     signatures,
		templates:      templates,
		users:          users,
		renderer:       renderer,
		artifacts:      artifacts,
		logger:         slog.Default(),
		auditPublisher: audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateFromTemplate renders a template into a new workflow-branch document
// and leaves it in preview, issuing one signing token per required party
// when an issuer is configured. Missing template variables fail validation
// before anything is persisted.
func (s *Service) CreateFromTemplate(ctx context.Context, templateID id.TemplateID, title string, clientID, certifierID id.UserID, vars map[string]string) (*models.Document, []IssuedSigningToken, error) {
	tmpl, err := s.templates.FindByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "template not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load template")
	}
	if err := s.requireUsers(ctx, clientID, certifierID); err != nil {
		return nil, nil, err
	}

	body, err := tmpl.Render(vars)
	if err != nil {
		return nil, nil, err
	}

	now := requestcontext.Now(ctx)
	doc, err := models.NewFromTemplate(id.NewDocumentID(), templateID, strings.TrimSpace(title), clientID, certifierID, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, nil, err
	}
	if err := doc.CanPreview(); err != nil {
		return nil, nil, err
	}
	doc.ApplyPreview(body, now)

	if err := s.renderArtifact(ctx, doc); err != nil {
		return nil, nil, err
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create document")
	}

	tokens, err := s.issuePartyTokens(ctx, doc)
	if err != nil {
		return nil, nil, err
	}

	if err := s.emitDocumentEvent(ctx, audit.EventDocumentCreated, doc, nil); err != nil {
		return nil, nil, err
	}
	if s.metrics != nil {
		s.metrics.DocumentsCreated.Inc()
	}
	return doc, tokens, nil
}

// issuePartyTokens mints one signing token per document party. Token issuance
// is part of the creation contract, so a failed mint fails the operation.
func (s *Service) issuePartyTokens(ctx context.Context, doc *models.Document) ([]IssuedSigningToken, error) {
	if s.issuer == nil {
		return nil, nil
	}
	parties := []struct {
		userID id.UserID
		role   id.Role
	}{
		{doc.ClientID, id.RoleClient},
		{doc.CertifierID, id.RoleCertifier},
	}
	tokens := make([]IssuedSigningToken, 0, len(parties))
	for _, p := range parties {
		tok, err := s.issuer.IssueFor(ctx, doc.ID, p.userID, p.role)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue signing token")
		}
		tokens = append(tokens, *tok)
	}
	return tokens, nil
}

// CreateUpload registers an externally produced document for certification.
func (s *Service) CreateUpload(ctx context.Context, title, body string, clientID, certifierID id.UserID) (*models.Document, error) {
	if err := s.requireUsers(ctx, clientID, certifierID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	doc, err := models.NewUpload(id.NewDocumentID(), strings.TrimSpace(title), body, clientID, certifierID, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.renderArtifact(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create document")
	}
	if err := s.emitDocumentEvent(ctx, audit.EventDocumentCreated, doc, nil); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.DocumentsCreated.Inc()
	}
	return doc, nil
}

// RequestChanges replaces the body of a preview document. Content is frozen
// once the document leaves preview.
func (s *Service) RequestChanges(ctx context.Context, docID id.DocumentID, callerID id.UserID, newBody string) (*models.Document, error) {
	if newBody == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "new document body is required")
	}

	now := requestcontext.Now(ctx)
	doc, err := s.documents.Execute(ctx, docID,
		func(d *models.Document) error {
			if err := s.requireParticipant(ctx, d, callerID); err != nil {
				return err
			}
			if err := d.CanReplaceContent(); err != nil {
				return dErrors.New(dErrors.CodeInvalidState, "document content is frozen after preview")
			}
			return nil
		},
		func(d *models.Document) {
			d.ApplyReplaceContent(newBody, now)
		},
	)
	if err != nil {
		return nil, wrapDocErr(err)
	}

	if err := s.renderArtifact(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// SendForSignature freezes a preview document and opens it for signing.
func (s *Service) SendForSignature(ctx context.Context, docID id.DocumentID, callerID id.UserID) (*models.Document, error) {
	now := requestcontext.Now(ctx)
	doc, err := s.documents.Execute(ctx, docID,
		func(d *models.Document) error {
			if err := s.requireParticipant(ctx, d, callerID); err != nil {
				return err
			}
			if err := d.CanSendForSignature(); err != nil {
				return dErrors.New(dErrors.CodeInvalidState, "document is not in preview")
			}
			return nil
		},
		func(d *models.Document) {
			d.ApplySendForSignature(now)
		},
	)
	if err != nil {
		return nil, wrapDocErr(err)
	}

	if err := s.emitDocumentEvent(ctx, audit.EventDocumentSent, doc, nil); err != nil {
		return nil, err
	}
	return doc, nil
}

// SubmitSignature redeems a signature token and records the capture. A
// repeat submission for the same role supersedes the previous signature.
// When every signing role holds an effective signature the document
// completes.
func (s *Service) SubmitSignature(ctx context.Context, token, imageData string) (*models.Document, *models.Signature, error) {
	if s.tokens == nil {
		return nil, nil, dErrors.New(dErrors.CodeUnavailable, "signature tokens are not configured")
	}
	grant, err := s.tokens.Validate(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	now := requestcontext.Now(ctx)
	sig, err := models.NewSignature(
		id.NewSignatureID(),
		grant.DocumentID,
		grant.UserID,
		grant.Role,
		imageData,
		requestcontext.ClientIP(ctx),
		requestcontext.UserAgent(ctx),
		now,
	)
	if err != nil {
		return nil, nil, err
	}

	// Validate the document accepts signatures before recording anything.
	current, err := s.documents.FindByID(ctx, grant.DocumentID)
	if err != nil {
		return nil, nil, wrapDocErr(err)
	}
	if err := current.CanAcceptSignature(); err != nil {
		return nil, nil, dErrors.New(dErrors.CodeInvalidState, "document does not accept signatures")
	}

	if err := s.signatures.Record(ctx, sig); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record signature")
	}

	effective, err := s.signatures.ListEffective(ctx, grant.DocumentID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load signatures")
	}
	allSigned := coversSigningRoles(effective)

	doc, err := s.documents.Execute(ctx, grant.DocumentID,
		func(d *models.Document) error {
			return d.CanAcceptSignature()
		},
		func(d *models.Document) {
			d.ApplySignatureProgress(allSigned, now)
		},
	)
	if err != nil {
		return nil, nil, wrapDocErr(err)
	}

	if err := s.embedSignature(ctx, doc, sig); err != nil {
		return nil, nil, err
	}

	if err := s.emitDocumentEvent(ctx, audit.EventDocumentSigned, doc, map[string]string{
		"role":      string(sig.Role),
		"signature": sig.ID.String(),
	}); err != nil {
		return nil, nil, err
	}
	if s.metrics != nil {
		s.metrics.SignaturesRecorded.WithLabelValues(string(sig.Role)).Inc()
	}
	return doc, sig, nil
}

// Certify marks a document certified and stamps its artifact. Only the
// assigned certifier (or an admin) may certify.
func (s *Service) Certify(ctx context.Context, docID id.DocumentID, certifierID id.UserID, notes string) (*models.Document, error) {
	start := time.Now()
	now := requestcontext.Now(ctx)

	doc, err := s.documents.Execute(ctx, docID,
		func(d *models.Document) error {
			if err := s.requireCertifier(ctx, d, certifierID); err != nil {
				return err
			}
			if err := d.CanCertify(); err != nil {
				return dErrors.New(dErrors.CodeInvalidState, err.Error())
			}
			return nil
		},
		func(d *models.Document) {
			d.ApplyCertification(certifierID, notes, now)
		},
	)
	if err != nil {
		return nil, wrapDocErr(err)
	}

	if err := s.stampArtifact(ctx, doc, certifierID, now); err != nil {
		return nil, err
	}

	if err := s.emitDocumentEvent(ctx, audit.EventDocumentCertified, doc, nil); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.DocumentsCertified.Inc()
		s.metrics.CertifyDuration.Observe(time.Since(start).Seconds())
	}
	return doc, nil
}

// Reject declines an uploaded document with a reason.
func (s *Service) Reject(ctx context.Context, docID id.DocumentID, certifierID id.UserID, reason string) (*models.Document, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}

	now := requestcontext.Now(ctx)
	doc, err := s.documents.Execute(ctx, docID,
		func(d *models.Document) error {
			if err := s.requireCertifier(ctx, d, certifierID); err != nil {
				return err
			}
			if err := d.CanReject(); err != nil {
				return dErrors.New(dErrors.CodeInvalidState, err.Error())
			}
			return nil
		},
		func(d *models.Document) {
			d.ApplyRejection(reason, now)
		},
	)
	if err != nil {
		return nil, wrapDocErr(err)
	}

	if err := s.emitDocumentEvent(ctx, audit.EventDocumentRejected, doc, map[string]string{"reason": reason}); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.DocumentsRejected.Inc()
	}
	return doc, nil
}

// StartProcessing reserves an uploaded document for active work
// (certifier review or a scheduled session).
func (s *Service) StartProcessing(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	now := requestcontext.Now(ctx)
	doc, err := s.documents.Execute(ctx, docID,
		func(d *models.Document) error {
			if err := d.CanStartProcessing(); err != nil {
				return dErrors.New(dErrors.CodeInvalidState, err.Error())
			}
			return nil
		},
		func(d *models.Document) {
			d.ApplyStartProcessing(now)
		},
	)
	if err != nil {
		return nil, wrapDocErr(err)
	}
	return doc, nil
}

// Get returns a document to one of its participants.
func (s *Service) Get(ctx context.Context, docID id.DocumentID, callerID id.UserID) (*models.Document, error) {
	doc, err := s.documents.FindByID(ctx, docID)
	if err != nil {
		return nil, wrapDocErr(err)
	}
	if err := s.requireParticipant(ctx, doc, callerID); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetSignatures returns the full capture trail for a document.
func (s *Service) GetSignatures(ctx context.Context, docID id.DocumentID, callerID id.UserID) ([]*models.Signature, error) {
	doc, err := s.documents.FindByID(ctx, docID)
	if err != nil {
		return nil, wrapDocErr(err)
	}
	if err := s.requireParticipant(ctx, doc, callerID); err != nil {
		return nil, err
	}
	sigs, err := s.signatures.ListByDocument(ctx, docID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load signatures")
	}
	return sigs, nil
}

// GetArtifact returns the rendered artifact for a document.
func (s *Service) GetArtifact(ctx context.Context, docID id.DocumentID, callerID id.UserID) ([]byte, error) {
	doc, err := s.documents.FindByID(ctx, docID)
	if err != nil {
		return nil, wrapDocErr(err)
	}
	if err := s.requireParticipant(ctx, doc, callerID); err != nil {
		return nil, err
	}
	artifact, err := s.artifacts.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document artifact not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load artifact")
	}
	return artifact, nil
}

// ListPendingCertification returns the certifier's upload-branch queue,
// oldest first.
func (s *Service) ListPendingCertification(ctx context.Context, certifierID id.UserID) ([]*models.Document, error) {
	if !requestcontext.Role(ctx).CanCertify() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only certifiers list pending documents")
	}
	docs, err := s.documents.ListPendingCertification(ctx, certifierID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending documents")
	}
	return docs, nil
}

// ListForParticipant returns every document the caller takes part in.
func (s *Service) ListForParticipant(ctx context.Context, userID id.UserID) ([]*models.Document, error) {
	docs, err := s.documents.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return docs, nil
}

// CreateTemplate registers a new template.
func (s *Service) CreateTemplate(ctx context.Context, name, body string) (*models.Template, error) {
	tmpl, err := models.NewTemplate(id.NewTemplateID(), strings.TrimSpace(name), body, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.templates.Save(ctx, tmpl); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save template")
	}
	return tmpl, nil
}

// ListTemplates returns all templates.
func (s *Service) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	tmpls, err := s.templates.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list templates")
	}
	return tmpls, nil
}

// -----------------------------------------------------------------------------
// Internal helpers
// -----------------------------------------------------------------------------

func (s *Service) requireUsers(ctx context.Context, clientID, certifierID id.UserID) error {
	client, err := s.users.FindByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "client user not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load client user")
	}
	certifier, err := s.users.FindByID(ctx, certifierID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "certifier user not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certifier user")
	}
	if client.Role != id.RoleClient {
		return dErrors.New(dErrors.CodeValidation, "client user does not hold the client role")
	}
	if !certifier.Role.CanCertify() {
		return dErrors.New(dErrors.CodeValidation, "certifier user cannot certify")
	}
	return nil
}

// requireParticipant enforces that the caller is a party on the document.
// Admins bypass the check.
func (s *Service) requireParticipant(ctx context.Context, doc *models.Document, callerID id.UserID) error {
	if requestcontext.Role(ctx) == id.RoleAdmin {
		return nil
	}
	if !doc.IsParticipant(callerID) {
		return dErrors.New(dErrors.CodeForbidden, "caller is not a party on this document")
	}
	return nil
}

// requireCertifier enforces that the caller is the assigned certifier.
// Admins bypass the check.
func (s *Service) requireCertifier(ctx context.Context, doc *models.Document, callerID id.UserID) error {
	if requestcontext.Role(ctx) == id.RoleAdmin {
		return nil
	}
	if doc.CertifierID != callerID {
		return dErrors.New(dErrors.CodeForbidden, "caller is not the assigned certifier")
	}
	return nil
}

func (s *Service) renderArtifact(ctx context.Context, doc *models.Document) error {
	artifact, err := s.renderer.Render(doc.Title, doc.Body)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RenderFailures.Inc()
		}
		return dErrors.Wrap(err, dErrors.CodeRenderFailure, "failed to render document")
	}
	if err := s.artifacts.Put(ctx, doc.ID, artifact); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store artifact")
	}
	return nil
}

func (s *Service) embedSignature(ctx context.Context, doc *models.Document, sig *models.Signature) error {
	artifact, err := s.artifacts.Get(ctx, doc.ID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load artifact")
	}

	region := pdf.ClientRegion
	if sig.Role == id.RoleCertifier {
		region = pdf.CertifierRegion
	}
	stamped, err := s.renderer.EmbedSignature(artifact, sig.ImageData, sig.UserID.String(), region)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RenderFailures.Inc()
		}
		return dErrors.Wrap(err, dErrors.CodeRenderFailure, "failed to embed signature")
	}
	if err := s.artifacts.Put(ctx, doc.ID, stamped); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store artifact")
	}
	return nil
}

func (s *Service) stampArtifact(ctx context.Context, doc *models.Document, certifierID id.UserID, now time.Time) error {
	artifact, err := s.artifacts.Get(ctx, doc.ID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load artifact")
	}
	stamped, err := s.renderer.StampCertification(artifact, certifierID.String(), now)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RenderFailures.Inc()
		}
		return dErrors.Wrap(err, dErrors.CodeRenderFailure, "failed to stamp certification")
	}
	if err := s.artifacts.Put(ctx, doc.ID, stamped); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store artifact")
	}
	return nil
}

func (s *Service) emitDocumentEvent(ctx context.Context, action audit.AuditEvent, doc *models.Document, detail map[string]string) error {
	event := audit.Event{
		Timestamp:  requestcontext.Now(ctx),
		Action:     string(action),
		UserID:     requestcontext.UserID(ctx),
		DocumentID: doc.ID,
		Detail:     detail,
		RequestID:  requestcontext.RequestID(ctx),
		ClientIP:   requestcontext.ClientIP(ctx),
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", action, "error", err)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func coversSigningRoles(sigs []*models.Signature) bool {
	present := make(map[id.Role]bool, len(sigs))
	for _, sig := range sigs {
		present[sig.Role] = true
	}
	for _, role := range id.SigningRoles {
		if !present[role] {
			return false
		}
	}
	return true
}

// wrapDocErr translates store sentinels into coded domain errors, passing
// already-coded errors through untouched.
func wrapDocErr(err error) error {
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "document was modified concurrently")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvalidState, "document is in the wrong state")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "document store failure")
	}
}
