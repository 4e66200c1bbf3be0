package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	codestore "ronflow/internal/accesscode/store/code"
	"ronflow/internal/accesscode/service"
	"ronflow/internal/capability/qr"
	docmodels "ronflow/internal/document/models"
	docstore "ronflow/internal/document/store/document"
	ronmodels "ronflow/internal/ron/models"
	sessionstore "ronflow/internal/ron/store/session"
	"ronflow/internal/user"
	id "ronflow/pkg/domain"
	"ronflow/pkg/testutil"
)

type handlerFixture struct {
	router      http.Handler
	publicRoute http.Handler
	certifierID id.UserID
	sessionID   id.SessionID
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	users := user.NewInMemoryStore()
	client, err := user.New(id.NewUserID(), "Ada Reyes", "ada@example.com", id.RoleClient, now)
	require.NoError(t, err)
	require.NoError(t, users.Save(ctx, client))
	certifier, err := user.New(id.NewUserID(), "Niko Petrov", "niko@example.com", id.RoleCertifier, now)
	require.NoError(t, err)
	require.NoError(t, users.Save(ctx, certifier))

	documents := docstore.NewInMemoryStore()
	doc, err := docmodels.NewUpload(id.NewDocumentID(), "Deed", "body", client.ID, certifier.ID, now)
	require.NoError(t, err)
	require.NoError(t, documents.Create(ctx, doc))

	sessions := sessionstore.NewInMemoryStore()
	sess, err := ronmodels.NewRonSession(id.NewSessionID(), doc.ID, client.ID, certifier.ID, "ron-test", now.Add(time.Hour), now)
	require.NoError(t, err)
	require.NoError(t, sessions.Create(ctx, sess))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(codestore.NewInMemoryStore(), sessions, documents, users,
		qr.NewJSONEncoder(), "https://ron.example.com", service.WithLogger(logger))

	h := New(svc, logger)
	router := chi.NewRouter()
	h.Register(router)
	public := chi.NewRouter()
	h.RegisterPublic(public)

	return &handlerFixture{
		router:      router,
		publicRoute: public,
		certifierID: certifier.ID,
		sessionID:   sess.ID,
	}
}

func (f *handlerFixture) issue(t *testing.T) string {
	t.Helper()
	req := testutil.NewJSONRequest(t, http.MethodPost, "/access-codes", IssueRequest{SessionID: f.sessionID.String()})
	req = testutil.WithAuth(req, f.certifierID.String(), "certifier")
	rr := testutil.DoRequest(f.router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	issued := testutil.UnmarshalResponse[service.IssuedCode](t, rr)
	return issued.Code.Value
}

func TestAccessCodeLifecycleViaHandlers(t *testing.T) {
	f := newHandlerFixture(t)

	testutil.Given(t, "a certifier has issued an access code", func(t *testing.T) {
		value := f.issue(t)

		testutil.When(t, "an anonymous client redeems it", func(t *testing.T) {
			req := testutil.NewRequest(t, http.MethodPost, "/access-codes/"+value+"/redeem")
			rr := testutil.DoRequest(f.publicRoute, req)

			testutil.Then(t, "the session grant comes back with first_use set", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				testutil.AssertJSONContains(t, rr, "first_use", true)
				testutil.AssertJSONContains(t, rr, "client_name", "Ada Reyes")
				testutil.AssertJSONContains(t, rr, "session_id", f.sessionID.String())
			})
		})

		testutil.When(t, "the client redeems the same code again", func(t *testing.T) {
			req := testutil.NewRequest(t, http.MethodPost, "/access-codes/"+value+"/redeem")
			rr := testutil.DoRequest(f.publicRoute, req)

			testutil.Then(t, "re-entry succeeds without first_use", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				testutil.AssertJSONContains(t, rr, "first_use", false)
			})
		})
	})
}

func TestIssueRequiresSessionCertifier(t *testing.T) {
	f := newHandlerFixture(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/access-codes", IssueRequest{SessionID: f.sessionID.String()})
	req = testutil.WithAuth(req, id.NewUserID().String(), "certifier")
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
}

func TestRedeemUnknownCode(t *testing.T) {
	f := newHandlerFixture(t)

	req := testutil.NewRequest(t, http.MethodPost, "/access-codes/RON-000000-000000000000/redeem")
	rr := testutil.DoRequest(f.publicRoute, req)

	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}

func TestPeekDoesNotConsume(t *testing.T) {
	f := newHandlerFixture(t)
	value := f.issue(t)

	for range 2 {
		req := testutil.NewRequest(t, http.MethodGet, "/access-codes/"+value)
		rr := testutil.DoRequest(f.publicRoute, req)
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "redeemable", true)
	}
}

func TestStatsEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	f.issue(t)

	req := testutil.NewRequest(t, http.MethodGet, "/access-codes/stats")
	req = testutil.WithAuth(req, f.certifierID.String(), "certifier")
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "total", float64(1))
	testutil.AssertJSONContains(t, rr, "active", float64(1))
}
