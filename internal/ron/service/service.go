package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ronflow/internal/capability/video"
	docmodels "ronflow/internal/document/models"
	"ronflow/internal/ron/metrics"
	"ronflow/internal/ron/models"
	"ronflow/internal/user"
	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
	"ronflow/pkg/platform/audit"
	"ronflow/pkg/platform/sentinel"
	"ronflow/pkg/requestcontext"
)

// Reaper grace periods: scheduled sessions nobody joined, and active
// sessions that ran far past any reasonable meeting length.
const (
	DefaultScheduledGrace = 24 * time.Hour
	DefaultActiveGrace    = 4 * time.Hour
)

// SessionStore is the persistence boundary for RON sessions.
type SessionStore interface {
	Create(ctx context.Context, sess *models.RonSession) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.RonSession, error)
	Execute(ctx context.Context, sessionID id.SessionID, validate func(*models.RonSession) error, mutate func(*models.RonSession)) (*models.RonSession, error)
	ListByParticipant(ctx context.Context, userID id.UserID) ([]*models.RonSession, error)
	ListStale(ctx context.Context, now time.Time, scheduledGrace, activeGrace time.Duration) ([]*models.RonSession, error)
}

// DocumentWorkflow is the slice of the document module sessions drive:
// scheduling reserves an uploaded document, completion certifies it.
type DocumentWorkflow interface {
	Get(ctx context.Context, docID id.DocumentID, callerID id.UserID) (*docmodels.Document, error)
	StartProcessing(ctx context.Context, docID id.DocumentID) (*docmodels.Document, error)
	Certify(ctx context.Context, docID id.DocumentID, certifierID id.UserID, notes string) (*docmodels.Document, error)
}

// SessionDetail is a session plus what the caller may do with it next.
type SessionDetail struct {
	Session     *models.RonSession `json:"session"`
	CanJoin     bool               `json:"can_join"`
	CanComplete bool               `json:"can_complete"`
}

// JoinGrant is the credential handed to a participant entering the room.
type JoinGrant struct {
	Session    *models.RonSession `json:"session"`
	Credential *video.Credential  `json:"credential"`
}

// Service manages the RON session lifecycle.
type Service struct {
	sessions  SessionStore
	documents DocumentWorkflow
	users     user.Store
	issuer    video.CredentialIssuer

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

func New(sessions SessionStore, documents DocumentWorkflow, users user.Store, issuer video.CredentialIssuer, opts ...Option) *Service {
	s := &Service{
		sessions:       sessions,
		documents:      documents,
		users:          users,
		issuer:         issuer,
		logger:         slog.Default(),
		auditPublisher: audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule books a session for a document. The caller must be the document's
// certifier. An uploaded (or previously rejected) document is moved into
// processing so no other certifier picks it up while the meeting is pending.
func (s *Service) Schedule(ctx context.Context, docID id.DocumentID, scheduledFor time.Time) (*models.RonSession, error) {
	callerID := requestcontext.UserID(ctx)
	doc, err := s.documents.Get(ctx, docID, callerID)
	if err != nil {
		return nil, err
	}
	if doc.CertifierID != callerID && requestcontext.Role(ctx) != id.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the document's certifier can schedule a session")
	}

	if doc.Branch == docmodels.BranchUpload {
		switch doc.Status {
		case docmodels.StatusUploaded, docmodels.StatusRejected:
			if _, err := s.documents.StartProcessing(ctx, docID); err != nil {
				return nil, err
			}
		}
	}

	now := requestcontext.Now(ctx)
	sessionID := id.NewSessionID()
	sess, err := models.NewRonSession(sessionID, docID, doc.ClientID, doc.CertifierID, video.RoomName(sessionID), scheduledFor, now)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, s.wrapSessErr(err)
	}

	if err := s.emitSessionEvent(ctx, audit.EventSessionCreated, sess, map[string]string{
		"scheduled_for": sess.ScheduledFor.Format(time.RFC3339),
	}); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SessionsScheduled.Inc()
	}
	return sess, nil
}

// RequestJoinCredential hands the caller a video room credential. The first
// request activates the session and pins StartedAt; concurrent joiners
// serialize on the store and the loser sees the session already active,
// still receiving a credential.
func (s *Service) RequestJoinCredential(ctx context.Context, sessionID id.SessionID) (*JoinGrant, error) {
	callerID := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)

	var activated bool
	sess, err := s.sessions.Execute(ctx, sessionID,
		func(sess *models.RonSession) error {
			if !sess.IsParticipant(callerID) {
				return dErrors.New(dErrors.CodeForbidden, "user is not a participant in this session")
			}
			return sess.CanJoin()
		},
		func(sess *models.RonSession) {
			activated = sess.Status == models.SessionScheduled
			sess.ApplyActivation(now)
		},
	)
	if err != nil {
		return nil, s.wrapSessErr(err)
	}

	caller, err := s.users.FindByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	moderator := callerID == sess.CertifierID
	cred, err := s.issuer.Issue(sess.ID, caller.FullName, moderator, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to issue room credential")
	}

	if activated {
		if err := s.emitSessionEvent(ctx, audit.EventSessionStarted, sess, map[string]string{
			"first_joiner": callerID.String(),
		}); err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.SessionsActivated.Inc()
		}
	}
	if s.metrics != nil {
		role := "client"
		if moderator {
			role = "certifier"
		}
		s.metrics.CredentialsIssued.WithLabelValues(role).Inc()
	}
	return &JoinGrant{Session: sess, Credential: cred}, nil
}

// Complete ends an active session and certifies its document in the same
// motion. Only the certifier may complete. If document certification fails
// the session still completes but carries the certify-failed flag, so the
// certifier can retry certification through the document workflow.
func (s *Service) Complete(ctx context.Context, sessionID id.SessionID, recordingRef, notes string) (*models.RonSession, error) {
	callerID := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)

	sess, err := s.sessions.Execute(ctx, sessionID,
		func(sess *models.RonSession) error {
			if sess.CertifierID != callerID && requestcontext.Role(ctx) != id.RoleAdmin {
				return dErrors.New(dErrors.CodeForbidden, "only the session's certifier can complete it")
			}
			return sess.CanComplete()
		},
		func(sess *models.RonSession) {
			sess.ApplyCompletion(recordingRef, now)
		},
	)
	if err != nil {
		return nil, s.wrapSessErr(err)
	}
	if s.metrics != nil {
		s.metrics.SessionsCompleted.Inc()
		if sess.StartedAt != nil && sess.EndedAt != nil {
			s.metrics.SessionDuration.Observe(sess.EndedAt.Sub(*sess.StartedAt).Seconds())
		}
	}

	certifyErr := error(nil)
	if _, err := s.documents.Certify(ctx, sess.DocumentID, sess.CertifierID, notes); err != nil {
		certifyErr = err
		sess, err = s.sessions.Execute(ctx, sessionID,
			func(*models.RonSession) error { return nil },
			func(sess *models.RonSession) { sess.ApplyCertifyFailure(now) },
		)
		if err != nil {
			return nil, s.wrapSessErr(err)
		}
		s.logger.ErrorContext(ctx, "session completed but certification failed",
			"session_id", sess.ID,
			"document_id", sess.DocumentID,
			"error", certifyErr,
		)
		if s.metrics != nil {
			s.metrics.CertifyFailures.Inc()
		}
	}

	detail := map[string]string{"document_id": sess.DocumentID.String()}
	if certifyErr != nil {
		detail["certify_failed"] = "true"
	}
	if err := s.emitSessionEvent(ctx, audit.EventSessionCompleted, sess, detail); err != nil {
		return nil, err
	}
	if certifyErr != nil {
		return sess, certifyErr
	}
	return sess, nil
}

// Cancel calls off a session that has not yet completed. Only the certifier
// may cancel.
func (s *Service) Cancel(ctx context.Context, sessionID id.SessionID) (*models.RonSession, error) {
	callerID := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)

	sess, err := s.sessions.Execute(ctx, sessionID,
		func(sess *models.RonSession) error {
			if sess.CertifierID != callerID && requestcontext.Role(ctx) != id.RoleAdmin {
				return dErrors.New(dErrors.CodeForbidden, "only the session's certifier can cancel it")
			}
			return sess.CanCancel()
		},
		func(sess *models.RonSession) {
			sess.ApplyCancellation(now)
		},
	)
	if err != nil {
		return nil, s.wrapSessErr(err)
	}
	if err := s.emitSessionEvent(ctx, audit.EventSessionCancelled, sess, nil); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SessionsCancelled.Inc()
	}
	return sess, nil
}

// Get returns the session with next-action hints for the caller.
func (s *Service) Get(ctx context.Context, sessionID id.SessionID) (*SessionDetail, error) {
	callerID := requestcontext.UserID(ctx)
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, s.wrapSessErr(err)
	}
	if !sess.IsParticipant(callerID) && requestcontext.Role(ctx) != id.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "user is not a participant in this session")
	}
	return &SessionDetail{
		Session:     sess,
		CanJoin:     sess.CanJoin() == nil,
		CanComplete: callerID == sess.CertifierID && sess.CanComplete() == nil,
	}, nil
}

// ListForParticipant returns the user's sessions, soonest first, optionally
// narrowed to one status.
func (s *Service) ListForParticipant(ctx context.Context, userID id.UserID, statusFilter string) ([]*models.RonSession, error) {
	if statusFilter != "" {
		switch models.SessionStatus(statusFilter) {
		case models.SessionScheduled, models.SessionActive, models.SessionCompleted, models.SessionCancelled:
		default:
			return nil, dErrors.New(dErrors.CodeValidation, "unknown session status filter")
		}
	}
	sessions, err := s.sessions.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}
	if statusFilter == "" {
		return sessions, nil
	}
	filtered := make([]*models.RonSession, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Status == models.SessionStatus(statusFilter) {
			filtered = append(filtered, sess)
		}
	}
	return filtered, nil
}

// CancelStale cancels abandoned sessions: scheduled ones nobody joined
// within scheduledGrace, and active ones running past activeGrace. Called by
// the reaper; sessions that changed state between listing and locking are
// skipped, so repeated sweeps are safe.
func (s *Service) CancelStale(ctx context.Context, scheduledGrace, activeGrace time.Duration) (int, error) {
	now := requestcontext.Now(ctx)
	stale, err := s.sessions.ListStale(ctx, now, scheduledGrace, activeGrace)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list stale sessions")
	}

	cancelled := 0
	for _, candidate := range stale {
		sess, err := s.sessions.Execute(ctx, candidate.ID,
			func(sess *models.RonSession) error {
				if !sess.Stale(now, scheduledGrace, activeGrace) {
					return dErrors.New(dErrors.CodeInvalidState, "session no longer stale")
				}
				return sess.CanCancel()
			},
			func(sess *models.RonSession) {
				sess.ApplyCancellation(now)
			},
		)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvalidState) || errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return cancelled, s.wrapSessErr(err)
		}
		s.logger.InfoContext(ctx, "stale session cancelled",
			"session_id", sess.ID,
			"document_id", sess.DocumentID,
		)
		if s.metrics != nil {
			s.metrics.SessionsCancelled.Inc()
		}
		cancelled++
	}
	return cancelled, nil
}

func (s *Service) emitSessionEvent(ctx context.Context, action audit.AuditEvent, sess *models.RonSession, detail map[string]string) error {
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp:  requestcontext.Now(ctx),
		Action:     string(action),
		UserID:     requestcontext.UserID(ctx),
		DocumentID: sess.DocumentID,
		SessionID:  sess.ID,
		Detail:     detail,
		RequestID:  requestcontext.RequestID(ctx),
		ClientIP:   requestcontext.ClientIP(ctx),
	}); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", action, "error", err)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

// wrapSessErr translates store sentinels into coded domain errors, passing
// already-coded errors through untouched.
func (s *Service) wrapSessErr(err error) error {
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "session not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "session was modified concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "session store failure")
	}
}
