package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ronflow/internal/capability/video"
	docmodels "ronflow/internal/document/models"
	"ronflow/internal/ron/models"
	sessionstore "ronflow/internal/ron/store/session"
	"ronflow/internal/user"
	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
	"ronflow/pkg/requestcontext"
)

// =============================================================================
// RON Session Service Test Suite
// =============================================================================
// Session state is driven by who joins when; the tests pin the one-time
// activation, the certifier-only completion, and the certify-failed flag.

type SessionServiceSuite struct {
	suite.Suite
	sessions *sessionstore.InMemoryStore
	docs     *fakeDocumentWorkflow
	users    *user.InMemoryStore
	service  *Service

	now         time.Time
	clientID    id.UserID
	certifierID id.UserID
}

func TestSessionServiceSuite(t *testing.T) {
	suite.Run(t, new(SessionServiceSuite))
}

func (s *SessionServiceSuite) SetupTest() {
	s.sessions = sessionstore.NewInMemoryStore()
	s.users = user.NewInMemoryStore()
	s.now = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	s.clientID = s.mustSaveUser("Ada Reyes", id.RoleClient)
	s.certifierID = s.mustSaveUser("Niko Petrov", id.RoleCertifier)
	s.docs = &fakeDocumentWorkflow{
		documents: make(map[id.DocumentID]*docmodels.Document),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(s.sessions, s.docs, s.users, stubIssuer{}, WithLogger(logger))
}

func (s *SessionServiceSuite) mustSaveUser(name string, role id.Role) id.UserID {
	u, err := user.New(id.NewUserID(), name, name+"@example.com", role, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.users.Save(context.Background(), u))
	return u.ID
}

func (s *SessionServiceSuite) addUploadDoc() *docmodels.Document {
	doc, err := docmodels.NewUpload(id.NewDocumentID(), "Scanned Deed", "body", s.clientID, s.certifierID, s.now)
	s.Require().NoError(err)
	s.docs.documents[doc.ID] = doc
	return doc
}

func (s *SessionServiceSuite) ctxAs(userID id.UserID, role id.Role) context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	ctx = requestcontext.WithUserID(ctx, userID)
	return requestcontext.WithRole(ctx, role)
}

func (s *SessionServiceSuite) ctxAsAt(userID id.UserID, role id.Role, at time.Time) context.Context {
	ctx := requestcontext.WithTime(context.Background(), at)
	ctx = requestcontext.WithUserID(ctx, userID)
	return requestcontext.WithRole(ctx, role)
}

func (s *SessionServiceSuite) mustSchedule() *models.RonSession {
	doc := s.addUploadDoc()
	sess, err := s.service.Schedule(s.ctxAs(s.certifierID, id.RoleCertifier), doc.ID, s.now.Add(time.Hour))
	s.Require().NoError(err)
	return sess
}

// =============================================================================
// Fakes
// =============================================================================

type fakeDocumentWorkflow struct {
	documents  map[id.DocumentID]*docmodels.Document
	certifyErr error
	certified  []id.DocumentID
	processing []id.DocumentID
}

func (f *fakeDocumentWorkflow) Get(_ context.Context, docID id.DocumentID, _ id.UserID) (*docmodels.Document, error) {
	doc, ok := f.documents[docID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	return doc, nil
}

func (f *fakeDocumentWorkflow) StartProcessing(_ context.Context, docID id.DocumentID) (*docmodels.Document, error) {
	doc, ok := f.documents[docID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	doc.ApplyStartProcessing(time.Now())
	f.processing = append(f.processing, docID)
	return doc, nil
}

func (f *fakeDocumentWorkflow) Certify(_ context.Context, docID id.DocumentID, certifierID id.UserID, _ string) (*docmodels.Document, error) {
	if f.certifyErr != nil {
		return nil, f.certifyErr
	}
	doc, ok := f.documents[docID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	doc.ApplyCertification(certifierID, "", time.Now())
	f.certified = append(f.certified, docID)
	return doc, nil
}

type stubIssuer struct{}

func (stubIssuer) Issue(sessionID id.SessionID, displayName string, moderator bool, now time.Time) (*video.Credential, error) {
	return &video.Credential{
		RoomName:  video.RoomName(sessionID),
		Token:     "stub-token-for-" + displayName,
		ExpiresAt: now.Add(time.Hour),
	}, nil
}

// =============================================================================
// Schedule Tests
// =============================================================================

func (s *SessionServiceSuite) TestSchedule() {
	s.Run("books the session and reserves the uploaded document", func() {
		doc := s.addUploadDoc()
		sess, err := s.service.Schedule(s.ctxAs(s.certifierID, id.RoleCertifier), doc.ID, s.now.Add(time.Hour))
		s.Require().NoError(err)
		s.Equal(models.SessionScheduled, sess.Status)
		s.Equal(doc.ID, sess.DocumentID)
		s.NotEmpty(sess.RoomName)
		s.Contains(s.docs.processing, doc.ID, "uploaded document moved to processing")
	})

	s.Run("room name derives from the session id", func() {
		sess := s.mustSchedule()
		s.Equal(video.RoomName(sess.ID), sess.RoomName)
	})

	s.Run("only the document's certifier schedules", func() {
		doc := s.addUploadDoc()
		_, err := s.service.Schedule(s.ctxAs(s.clientID, id.RoleClient), doc.ID, s.now.Add(time.Hour))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown document is not found", func() {
		_, err := s.service.Schedule(s.ctxAs(s.certifierID, id.RoleCertifier), id.NewDocumentID(), s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// Join Tests
// =============================================================================

func (s *SessionServiceSuite) TestRequestJoinCredential() {
	s.Run("first join activates and pins the start time", func() {
		sess := s.mustSchedule()
		joinTime := s.now.Add(time.Hour)

		grant, err := s.service.RequestJoinCredential(s.ctxAsAt(s.clientID, id.RoleClient, joinTime), sess.ID)
		s.Require().NoError(err)
		s.Equal(models.SessionActive, grant.Session.Status)
		s.Require().NotNil(grant.Session.StartedAt)
		s.Equal(joinTime, *grant.Session.StartedAt)
		s.NotEmpty(grant.Credential.Token)
	})

	s.Run("later joins see an active session and keep the original start", func() {
		sess := s.mustSchedule()
		firstJoin := s.now.Add(time.Hour)
		secondJoin := firstJoin.Add(10 * time.Minute)

		_, err := s.service.RequestJoinCredential(s.ctxAsAt(s.clientID, id.RoleClient, firstJoin), sess.ID)
		s.Require().NoError(err)

		grant, err := s.service.RequestJoinCredential(s.ctxAsAt(s.certifierID, id.RoleCertifier, secondJoin), sess.ID)
		s.Require().NoError(err)
		s.Equal(models.SessionActive, grant.Session.Status)
		s.Equal(firstJoin, *grant.Session.StartedAt, "start time set exactly once")
	})

	s.Run("strangers are forbidden", func() {
		sess := s.mustSchedule()
		stranger := s.mustSaveUser("Mallory", id.RoleClient)
		_, err := s.service.RequestJoinCredential(s.ctxAs(stranger, id.RoleClient), sess.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("completed sessions hand out no credentials", func() {
		sess := s.mustSchedule()
		_, err := s.service.RequestJoinCredential(s.ctxAs(s.clientID, id.RoleClient), sess.ID)
		s.Require().NoError(err)
		_, err = s.service.Complete(s.ctxAs(s.certifierID, id.RoleCertifier), sess.ID, "", "")
		s.Require().NoError(err)

		_, err = s.service.RequestJoinCredential(s.ctxAs(s.clientID, id.RoleClient), sess.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

// =============================================================================
// Complete Tests
// =============================================================================

func (s *SessionServiceSuite) TestComplete() {
	activate := func(sess *models.RonSession) {
		_, err := s.service.RequestJoinCredential(s.ctxAs(s.clientID, id.RoleClient), sess.ID)
		s.Require().NoError(err)
	}

	s.Run("completes the session and certifies the document", func() {
		sess := s.mustSchedule()
		activate(sess)

		endTime := s.now.Add(2 * time.Hour)
		done, err := s.service.Complete(s.ctxAsAt(s.certifierID, id.RoleCertifier, endTime), sess.ID, "rec://vault/"+sess.ID.String(), "verified on video")
		s.Require().NoError(err)
		s.Equal(models.SessionCompleted, done.Status)
		s.Require().NotNil(done.EndedAt)
		s.Equal(endTime, *done.EndedAt)
		s.Equal("rec://vault/"+sess.ID.String(), done.RecordingRef)
		s.False(done.CertifyFailed)
		s.Contains(s.docs.certified, sess.DocumentID)
	})

	s.Run("completing twice conflicts", func() {
		sess := s.mustSchedule()
		activate(sess)
		_, err := s.service.Complete(s.ctxAs(s.certifierID, id.RoleCertifier), sess.ID, "", "")
		s.Require().NoError(err)

		_, err = s.service.Complete(s.ctxAs(s.certifierID, id.RoleCertifier), sess.ID, "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("a scheduled session cannot complete", func() {
		sess := s.mustSchedule()
		_, err := s.service.Complete(s.ctxAs(s.certifierID, id.RoleCertifier), sess.ID, "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("only the certifier completes", func() {
		sess := s.mustSchedule()
		activate(sess)
		_, err := s.service.Complete(s.ctxAs(s.clientID, id.RoleClient), sess.ID, "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("certification failure flags the completed session", func() {
		sess := s.mustSchedule()
		activate(sess)
		s.docs.certifyErr = dErrors.New(dErrors.CodeInvalidState, "document cannot be certified")

		done, err := s.service.Complete(s.ctxAs(s.certifierID, id.RoleCertifier), sess.ID, "", "")
		s.Require().Error(err)
		s.Require().NotNil(done, "session state is returned alongside the failure")
		s.Equal(models.SessionCompleted, done.Status)
		s.True(done.CertifyFailed)

		stored, err := s.sessions.FindByID(context.Background(), sess.ID)
		s.Require().NoError(err)
		s.True(stored.CertifyFailed, "flag is persisted")
	})
}

// =============================================================================
// Reaper Tests
// =============================================================================

func (s *SessionServiceSuite) TestCancelStale() {
	s.Run("cancels scheduled sessions nobody joined and long-running active ones", func() {
		abandoned := s.mustSchedule()
		running := s.mustSchedule()
		fresh := s.mustSchedule()

		_, err := s.service.RequestJoinCredential(s.ctxAs(s.clientID, id.RoleClient), running.ID)
		s.Require().NoError(err)

		// Jump past both grace periods for the first two sessions, keeping
		// the third freshly scheduled.
		sweepTime := s.now.Add(26 * time.Hour)
		freshAgain, err := s.sessions.Execute(context.Background(), fresh.ID,
			func(*models.RonSession) error { return nil },
			func(sess *models.RonSession) { sess.ScheduledFor = sweepTime.Add(time.Hour) },
		)
		s.Require().NoError(err)

		sweepCtx := requestcontext.WithTime(context.Background(), sweepTime)
		cancelled, err := s.service.CancelStale(sweepCtx, DefaultScheduledGrace, DefaultActiveGrace)
		s.Require().NoError(err)
		s.Equal(2, cancelled)

		for _, check := range []struct {
			id   id.SessionID
			want models.SessionStatus
		}{
			{abandoned.ID, models.SessionCancelled},
			{running.ID, models.SessionCancelled},
			{freshAgain.ID, models.SessionScheduled},
		} {
			got, err := s.sessions.FindByID(context.Background(), check.id)
			s.Require().NoError(err)
			s.Equal(check.want, got.Status)
		}
	})

	s.Run("a second sweep is a no-op", func() {
		stale := s.mustSchedule()
		sweepCtx := requestcontext.WithTime(context.Background(), s.now.Add(26*time.Hour))

		cancelled, err := s.service.CancelStale(sweepCtx, DefaultScheduledGrace, DefaultActiveGrace)
		s.Require().NoError(err)
		s.Equal(1, cancelled)

		cancelled, err = s.service.CancelStale(sweepCtx, DefaultScheduledGrace, DefaultActiveGrace)
		s.Require().NoError(err)
		s.Equal(0, cancelled)

		got, err := s.sessions.FindByID(context.Background(), stale.ID)
		s.Require().NoError(err)
		s.Equal(models.SessionCancelled, got.Status)
	})
}

// =============================================================================
// Listing Tests
// =============================================================================

func (s *SessionServiceSuite) TestListForParticipant() {
	first := s.mustSchedule()
	second := s.mustSchedule()
	_, err := s.service.RequestJoinCredential(s.ctxAs(s.clientID, id.RoleClient), second.ID)
	s.Require().NoError(err)

	s.Run("returns every session the user participates in", func() {
		sessions, err := s.service.ListForParticipant(s.ctxAs(s.clientID, id.RoleClient), s.clientID, "")
		s.Require().NoError(err)
		s.Len(sessions, 2)
	})

	s.Run("a status filter narrows the list", func() {
		sessions, err := s.service.ListForParticipant(s.ctxAs(s.clientID, id.RoleClient), s.clientID, "scheduled")
		s.Require().NoError(err)
		s.Require().Len(sessions, 1)
		s.Equal(first.ID, sessions[0].ID)

		sessions, err = s.service.ListForParticipant(s.ctxAs(s.clientID, id.RoleClient), s.clientID, "active")
		s.Require().NoError(err)
		s.Require().Len(sessions, 1)
		s.Equal(second.ID, sessions[0].ID)
	})

	s.Run("an unknown status fails validation", func() {
		_, err := s.service.ListForParticipant(s.ctxAs(s.clientID, id.RoleClient), s.clientID, "paused")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("non-participants see nothing", func() {
		stranger := s.mustSaveUser("Mallory", id.RoleClient)
		sessions, err := s.service.ListForParticipant(s.ctxAs(stranger, id.RoleClient), stranger, "")
		s.Require().NoError(err)
		s.Empty(sessions)
	})
}
