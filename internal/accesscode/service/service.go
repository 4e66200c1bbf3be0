package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ronflow/internal/accesscode/metrics"
	"ronflow/internal/accesscode/models"
	"ronflow/internal/capability/notify"
	"ronflow/internal/capability/qr"
	docmodels "ronflow/internal/document/models"
	ronmodels "ronflow/internal/ron/models"
	"ronflow/internal/user"
	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
	"ronflow/pkg/platform/audit"
	"ronflow/pkg/platform/sentinel"
	"ronflow/pkg/requestcontext"
)

// CodeStore is the persistence boundary for client access codes.
type CodeStore interface {
	Save(ctx context.Context, c *models.ClientAccessCode) error
	FindByValue(ctx context.Context, value string) (*models.ClientAccessCode, error)
	FindActiveBySession(ctx context.Context, sessionID id.SessionID) (*models.ClientAccessCode, error)
	Execute(ctx context.Context, value string, validate func(*models.ClientAccessCode) error, mutate func(*models.ClientAccessCode)) (*models.ClientAccessCode, error)
	ListByCertifier(ctx context.Context, certifierID id.UserID, status models.CodeStatus) ([]*models.ClientAccessCode, error)
	MarkExpired(ctx context.Context, now time.Time) (int, error)
}

// SessionFinder resolves the session a code grants access to.
type SessionFinder interface {
	FindByID(ctx context.Context, sessionID id.SessionID) (*ronmodels.RonSession, error)
}

// DocumentFinder resolves document titles for share messages.
type DocumentFinder interface {
	FindByID(ctx context.Context, docID id.DocumentID) (*docmodels.Document, error)
}

// IssuedCode is a freshly minted code plus everything needed to deliver it.
type IssuedCode struct {
	Code      *models.ClientAccessCode `json:"code"`
	QR        string                   `json:"qr"`
	DirectURL string                   `json:"direct_url"`
	Messages  notify.Messages          `json:"messages"`
}

// RedeemedAccess is what an anonymous client gets back for a valid code.
// Redeeming the same code again before expiry yields the same join
// configuration, so a client can re-open the link mid-appointment.
type RedeemedAccess struct {
	SessionID     id.SessionID            `json:"session_id"`
	SessionStatus ronmodels.SessionStatus `json:"session_status"`
	RoomName      string                  `json:"room_name"`
	ScheduledFor  time.Time               `json:"scheduled_for"`
	DocumentID    id.DocumentID           `json:"document_id"`
	ClientID      id.UserID               `json:"client_id"`
	ClientName    string                  `json:"client_name"`
	ExpiresAt     time.Time               `json:"expires_at"`
	FirstUse      bool                    `json:"first_use"`
}

// PeekResult reports a code's state without consuming it.
type PeekResult struct {
	Code       *models.ClientAccessCode `json:"code"`
	Redeemable bool                     `json:"redeemable"`
}

// Stats summarizes a certifier's code issuance.
type Stats struct {
	Total          int     `json:"total"`
	Active         int     `json:"active"`
	Used           int     `json:"used"`
	Expired        int     `json:"expired"`
	TodayGenerated int     `json:"today_generated"`
	UsageRate      float64 `json:"usage_rate"`
}

// Service issues and redeems client access codes.
type Service struct {
	codes     CodeStore
	sessions  SessionFinder
	documents DocumentFinder
	users     user.Store
	encoder   qr.Encoder

	publicBaseURL  string
	ttl            time.Duration
	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTTL overrides the default 24h code lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

func New(codes CodeStore, sessions SessionFinder, documents DocumentFinder, users user.Store, encoder qr.Encoder, publicBaseURL string, opts ...Option) *Service {
	s := &Service{
		codes:          codes,
		sessions:       sessions,
		documents:      documents,
		users:          users,
		encoder:        encoder,
		publicBaseURL:  publicBaseURL,
		ttl:            models.DefaultTTL,
		logger:         slog.Default(),
		auditPublisher: audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue mints an access code for a session and prepares the delivery
// material: QR payload, direct link, and per-channel share messages. Only
// the session's certifier may issue.
func (s *Service) Issue(ctx context.Context, sessionID id.SessionID) (*IssuedCode, error) {
	sess, err := s.requireCertifierSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	issued, err := s.mint(ctx, sess)
	if err != nil {
		return nil, err
	}
	if err := s.emitCodeEvent(ctx, audit.EventCodeGenerated, issued.Code, nil); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.CodesIssued.Inc()
	}
	return issued, nil
}

// Redeem exchanges a code value for session access. Redemption is
// idempotent: a used code keeps working until expiry so the client can
// re-enter the room after a dropped connection. A code past its TTL is
// demoted to expired on the spot.
func (s *Service) Redeem(ctx context.Context, value string) (*RedeemedAccess, error) {
	if value == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "access code is required")
	}
	now := requestcontext.Now(ctx)

	var firstUse bool
	code, err := s.codes.Execute(ctx, value,
		func(*models.ClientAccessCode) error { return nil },
		func(c *models.ClientAccessCode) {
			if c.Status != models.CodeExpired && c.Expired(now) {
				c.ApplyExpiry(now)
				return
			}
			firstUse = c.Status == models.CodeActive
			c.ApplyRedemption(now)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown access code")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to redeem access code")
	}
	if code.Status == models.CodeExpired {
		if s.metrics != nil {
			s.metrics.CodesExpired.Inc()
		}
		return nil, dErrors.New(dErrors.CodeExpired, "this access code has expired, ask your certifier for a new one")
	}

	client, err := s.users.FindByID(ctx, code.ClientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load client")
	}
	sess, err := s.sessions.FindByID(ctx, code.SessionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}

	kind := "re-entry"
	if firstUse {
		kind = "first_use"
	}
	if err := s.emitCodeEvent(ctx, audit.EventCodeUsed, code, map[string]string{"kind": kind}); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.CodesRedeemed.WithLabelValues(kind).Inc()
	}
	return &RedeemedAccess{
		SessionID:     code.SessionID,
		SessionStatus: sess.Status,
		RoomName:      sess.RoomName,
		ScheduledFor:  sess.ScheduledFor,
		DocumentID:    code.DocumentID,
		ClientID:      code.ClientID,
		ClientName:    client.FullName,
		ExpiresAt:     code.ExpiresAt,
		FirstUse:      firstUse,
	}, nil
}

// Peek reports a code's state without redeeming it. The frontend uses this
// to pre-validate before the client commits to joining.
func (s *Service) Peek(ctx context.Context, value string) (*PeekResult, error) {
	if value == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "access code is required")
	}
	code, err := s.codes.FindByValue(ctx, value)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown access code")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load access code")
	}
	return &PeekResult{
		Code:       code,
		Redeemable: code.Redeemable(requestcontext.Now(ctx)) == nil,
	}, nil
}

// Regenerate expires a session's current code and mints a replacement, for
// when the original leaked or the client lost it.
func (s *Service) Regenerate(ctx context.Context, sessionID id.SessionID) (*IssuedCode, error) {
	sess, err := s.requireCertifierSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	old, err := s.codes.FindActiveBySession(ctx, sessionID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load current code")
	}
	if old != nil {
		if _, err := s.codes.Execute(ctx, old.Value,
			func(*models.ClientAccessCode) error { return nil },
			func(c *models.ClientAccessCode) { c.ApplyExpiry(now) },
		); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to expire current code")
		}
	}

	issued, err := s.mint(ctx, sess)
	if err != nil {
		return nil, err
	}
	detail := map[string]string{}
	if old != nil {
		detail["replaced"] = old.Value
	}
	if err := s.emitCodeEvent(ctx, audit.EventCodeRegenerated, issued.Code, detail); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.CodesRegenerated.Inc()
	}
	return issued, nil
}

// ListForCertifier returns the caller's issued codes, newest first,
// optionally filtered by status.
func (s *Service) ListForCertifier(ctx context.Context, statusFilter string) ([]*models.ClientAccessCode, error) {
	status, err := parseStatusFilter(statusFilter)
	if err != nil {
		return nil, err
	}
	codes, err := s.codes.ListByCertifier(ctx, requestcontext.UserID(ctx), status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list access codes")
	}
	return codes, nil
}

// Stats summarizes the caller's code issuance and usage.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	codes, err := s.codes.ListByCertifier(ctx, requestcontext.UserID(ctx), "")
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list access codes")
	}

	now := requestcontext.Now(ctx)
	year, month, day := now.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, now.Location())

	stats := &Stats{Total: len(codes)}
	for _, c := range codes {
		switch c.Status {
		case models.CodeActive:
			stats.Active++
		case models.CodeUsed:
			stats.Used++
		case models.CodeExpired:
			stats.Expired++
		}
		if !c.IssuedAt.Before(midnight) {
			stats.TodayGenerated++
		}
	}
	if stats.Total > 0 {
		stats.UsageRate = float64(stats.Used) / float64(stats.Total)
	}
	return stats, nil
}

// ExpireStale demotes active codes past their TTL. Called by the reaper.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	expired, err := s.codes.MarkExpired(ctx, requestcontext.Now(ctx))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to expire stale codes")
	}
	if s.metrics != nil && expired > 0 {
		s.metrics.CodesExpired.Add(float64(expired))
	}
	return expired, nil
}

func (s *Service) requireCertifierSession(ctx context.Context, sessionID id.SessionID) (*ronmodels.RonSession, error) {
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	callerID := requestcontext.UserID(ctx)
	if sess.CertifierID != callerID && requestcontext.Role(ctx) != id.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the session's certifier can manage its access codes")
	}
	return sess, nil
}

func (s *Service) mint(ctx context.Context, sess *ronmodels.RonSession) (*IssuedCode, error) {
	now := requestcontext.Now(ctx)
	code, err := models.NewClientAccessCode(sess.ID, sess.DocumentID, sess.ClientID, sess.CertifierID, s.ttl, now)
	if err != nil {
		return nil, err
	}
	if err := s.codes.Save(ctx, code); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save access code")
	}

	client, err := s.users.FindByID(ctx, sess.ClientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load client")
	}
	certifier, err := s.users.FindByID(ctx, sess.CertifierID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certifier")
	}
	doc, err := s.documents.FindByID(ctx, sess.DocumentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}

	directURL := fmt.Sprintf("%s/join/%s", s.publicBaseURL, code.Value)
	encoded, err := s.encoder.Encode(qr.Payload{
		Type:          "ron_access",
		Code:          code.Value,
		SessionID:     sess.ID.String(),
		ClientName:    client.FullName,
		DocumentTitle: doc.Title,
		CertifierName: certifier.FullName,
		DirectURL:     directURL,
		ExpiresAt:     code.ExpiresAt,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRenderFailure, "failed to encode access code")
	}

	messages := notify.Format(notify.CodeMessage{
		Code:          code.Value,
		ClientName:    client.FullName,
		CertifierName: certifier.FullName,
		DocumentTitle: doc.Title,
		DirectURL:     directURL,
		ExpiresAt:     code.ExpiresAt,
	})

	return &IssuedCode{
		Code:      code,
		QR:        encoded,
		DirectURL: directURL,
		Messages:  messages,
	}, nil
}

func (s *Service) emitCodeEvent(ctx context.Context, action audit.AuditEvent, code *models.ClientAccessCode, detail map[string]string) error {
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp:  requestcontext.Now(ctx),
		Action:     string(action),
		UserID:     requestcontext.UserID(ctx),
		DocumentID: code.DocumentID,
		SessionID:  code.SessionID,
		Detail:     detail,
		RequestID:  requestcontext.RequestID(ctx),
		ClientIP:   requestcontext.ClientIP(ctx),
	}); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", action, "error", err)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func parseStatusFilter(raw string) (models.CodeStatus, error) {
	switch models.CodeStatus(raw) {
	case "", models.CodeActive, models.CodeUsed, models.CodeExpired:
		return models.CodeStatus(raw), nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unknown status filter")
	}
}
