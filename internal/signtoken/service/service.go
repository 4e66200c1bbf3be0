package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	docmodels "ronflow/internal/document/models"
	docservice "ronflow/internal/document/service"
	"ronflow/internal/signtoken/models"
	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
	"ronflow/pkg/platform/audit"
	"ronflow/pkg/platform/sentinel"
	"ronflow/pkg/requestcontext"
)

// TokenStore is the persistence boundary for signature tokens.
type TokenStore interface {
	Save(ctx context.Context, t *models.SignatureToken) error
	FindByValue(ctx context.Context, value string) (*models.SignatureToken, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// DocumentFinder is the slice of the document store the issuer needs:
// tokens bind to documents, so both issue and redeem verify the document
// still exists.
type DocumentFinder interface {
	FindByID(ctx context.Context, docID id.DocumentID) (*docmodels.Document, error)
}

// Service issues and validates signature tokens.
type Service struct {
	tokens    TokenStore
	documents DocumentFinder

	ttl            time.Duration
	logger         *slog.Logger
	auditPublisher audit.Publisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

// WithTTL overrides the default 24h token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

func New(tokens TokenStore, documents DocumentFinder, opts ...Option) *Service {
	s := &Service{
		tokens:         tokens,
		documents:      documents,
		ttl:            models.DefaultTTL,
		logger:         slog.Default(),
		auditPublisher: audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue mints a token letting userID sign docID in the given role. The user
// must be the document's party for that role. Issuing again for the same
// pair simply mints a fresh token; older tokens stay valid until expiry.
func (s *Service) Issue(ctx context.Context, docID id.DocumentID, userID id.UserID, role id.Role) (*models.SignatureToken, error) {
	doc, err := s.documents.FindByID(ctx, docID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	if err := doc.CanAcceptSignature(); err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidState, "document does not accept signatures")
	}

	switch role {
	case id.RoleClient:
		if doc.ClientID != userID {
			return nil, dErrors.New(dErrors.CodeForbidden, "user is not the client on this document")
		}
	case id.RoleCertifier:
		if doc.CertifierID != userID {
			return nil, dErrors.New(dErrors.CodeForbidden, "user is not the certifier on this document")
		}
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "role cannot sign documents")
	}

	now := requestcontext.Now(ctx)
	token, err := models.NewSignatureToken(docID, userID, role, requestcontext.UserID(ctx), s.ttl, now)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Save(ctx, token); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save signature token")
	}

	if err := s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp:  now,
		Action:     string(audit.EventTokenIssued),
		UserID:     userID,
		DocumentID: docID,
		Detail:     map[string]string{"role": string(role)},
		RequestID:  requestcontext.RequestID(ctx),
		ClientIP:   requestcontext.ClientIP(ctx),
	}); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", audit.EventTokenIssued, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return token, nil
}

// Validate resolves a token value. A token is valid iff it exists, its
// document still exists, and the request time is before its expiry.
// Validation is read-only; tokens are not consumed.
func (s *Service) Validate(ctx context.Context, value string) (*models.SignatureToken, error) {
	if value == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "signature token is required")
	}

	token, err := s.tokens.FindByValue(ctx, value)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown signature token")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load signature token")
	}
	if token.Expired(requestcontext.Now(ctx)) {
		return nil, dErrors.New(dErrors.CodeExpired, "this signing link has expired, request a new one")
	}
	if _, err := s.documents.FindByID(ctx, token.DocumentID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document for token no longer exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	return token, nil
}

// DeleteExpired purges tokens past their TTL. Called by the reaper.
func (s *Service) DeleteExpired(ctx context.Context) (int, error) {
	deleted, err := s.tokens.DeleteExpired(ctx, requestcontext.Now(ctx))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge expired tokens")
	}
	return deleted, nil
}

// GrantValidator adapts the service to the document workflow's
// TokenValidator boundary.
type GrantValidator struct {
	service *Service
}

func NewGrantValidator(service *Service) *GrantValidator {
	return &GrantValidator{service: service}
}

func (v *GrantValidator) Validate(ctx context.Context, value string) (*docservice.SignatureGrant, error) {
	token, err := v.service.Validate(ctx, value)
	if err != nil {
		return nil, err
	}
	return &docservice.SignatureGrant{
		DocumentID: token.DocumentID,
		UserID:     token.UserID,
		Role:       token.Role,
	}, nil
}

// PartyIssuer adapts the service to the document workflow's TokenIssuer
// boundary so new documents get their per-party tokens at creation.
type PartyIssuer struct {
	service *Service
}

func NewPartyIssuer(service *Service) *PartyIssuer {
	return &PartyIssuer{service: service}
}

func (i *PartyIssuer) IssueFor(ctx context.Context, docID id.DocumentID, userID id.UserID, role id.Role) (*docservice.IssuedSigningToken, error) {
	token, err := i.service.Issue(ctx, docID, userID, role)
	if err != nil {
		return nil, err
	}
	return &docservice.IssuedSigningToken{
		Value:     token.Value,
		Role:      token.Role,
		ExpiresAt: token.ExpiresAt,
	}, nil
}
