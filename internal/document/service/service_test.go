package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ronflow/internal/capability/pdf"
	"ronflow/internal/document/models"
	docstore "ronflow/internal/document/store/document"
	sigstore "ronflow/internal/document/store/signature"
	tmplstore "ronflow/internal/document/store/template"
	"ronflow/internal/user"
	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
	"ronflow/pkg/requestcontext"
)

// =============================================================================
// Document Service Test Suite
// =============================================================================
// The workflow invariants (signature supersedes, completion on full coverage,
// content freeze) live in the service's coordination of stores, so they are
// exercised here against the in-memory stores.

type DocumentServiceSuite struct {
	suite.Suite
	documents  *docstore.InMemoryStore
	signatures *sigstore.InMemoryStore
	templates  *tmplstore.InMemoryStore
	users      *user.InMemoryStore
	validator  *stubTokenValidator
	issuer     *stubTokenIssuer
	service    *Service

	now         time.Time
	clientID    id.UserID
	certifierID id.UserID
}

func TestDocumentServiceSuite(t *testing.T) {
	suite.Run(t, new(DocumentServiceSuite))
}

func (s *DocumentServiceSuite) SetupTest() {
	s.documents = docstore.NewInMemoryStore()
	s.signatures = sigstore.NewInMemoryStore()
	s.templates = tmplstore.NewInMemoryStore()
	s.users = user.NewInMemoryStore()
	s.validator = &stubTokenValidator{grants: make(map[string]*SignatureGrant)}
	s.issuer = &stubTokenIssuer{}

	s.now = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	s.clientID = s.mustSaveUser("Ada Reyes", id.RoleClient)
	s.certifierID = s.mustSaveUser("Niko Petrov", id.RoleCertifier)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(s.documents, s.signatures, s.templates, s.users, pdf.NewTextRenderer(), pdf.NewInMemoryArtifactStore(),
		WithLogger(logger),
		WithTokenValidator(s.validator),
		WithTokenIssuer(s.issuer),
	)
}

func (s *DocumentServiceSuite) mustSaveUser(name string, role id.Role) id.UserID {
	u, err := user.New(id.NewUserID(), name, name+"@example.com", role, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.users.Save(context.Background(), u))
	return u.ID
}

func (s *DocumentServiceSuite) ctxAs(userID id.UserID, role id.Role) context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	ctx = requestcontext.WithUserID(ctx, userID)
	return requestcontext.WithRole(ctx, role)
}

func (s *DocumentServiceSuite) mustCreateTemplate() *models.Template {
	ctx := s.ctxAs(s.certifierID, id.RoleCertifier)
	tmpl, err := s.service.CreateTemplate(ctx, "power-of-attorney",
		"I, {{client_name}}, appoint {{agent_name}} as my attorney-in-fact.")
	s.Require().NoError(err)
	return tmpl
}

func (s *DocumentServiceSuite) mustCreateWorkflowDoc() *models.Document {
	tmpl := s.mustCreateTemplate()
	ctx := s.ctxAs(s.certifierID, id.RoleCertifier)
	doc, _, err := s.service.CreateFromTemplate(ctx, tmpl.ID, "POA for Ada", s.clientID, s.certifierID,
		map[string]string{"client_name": "Ada Reyes", "agent_name": "Niko Petrov"})
	s.Require().NoError(err)
	return doc
}

func (s *DocumentServiceSuite) grantToken(token string, doc *models.Document, userID id.UserID, role id.Role) {
	s.validator.grants[token] = &SignatureGrant{DocumentID: doc.ID, UserID: userID, Role: role}
}

// =============================================================================
// Stub Token Validator
// =============================================================================

type stubTokenValidator struct {
	grants map[string]*SignatureGrant
}

func (v *stubTokenValidator) Validate(_ context.Context, token string) (*SignatureGrant, error) {
	grant, ok := v.grants[token]
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown signature token")
	}
	return grant, nil
}

type stubTokenIssuer struct {
	issued []IssuedSigningToken
}

func (i *stubTokenIssuer) IssueFor(_ context.Context, docID id.DocumentID, _ id.UserID, role id.Role) (*IssuedSigningToken, error) {
	tok := IssuedSigningToken{
		Value:     "tok-" + string(role) + "-" + docID.String(),
		Role:      role,
		ExpiresAt: time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC),
	}
	i.issued = append(i.issued, tok)
	return &tok, nil
}

// =============================================================================
// Creation Tests
// =============================================================================

func (s *DocumentServiceSuite) TestCreateFromTemplate() {
	s.Run("renders the template and lands in preview", func() {
		doc := s.mustCreateWorkflowDoc()
		s.Equal(models.StatusPreview, doc.Status)
		s.Equal(models.BranchWorkflow, doc.Branch)
		s.Contains(doc.Body, "Ada Reyes")
		s.Contains(doc.Body, "Niko Petrov")

		artifact, err := s.service.GetArtifact(s.ctxAs(s.clientID, id.RoleClient), doc.ID, s.clientID)
		s.NoError(err)
		s.NotEmpty(artifact)
	})

	s.Run("issues one signing token per party", func() {
		s.issuer.issued = nil
		doc := s.mustCreateWorkflowDoc()
		s.Require().Len(s.issuer.issued, 2)
		s.Equal(id.RoleClient, s.issuer.issued[0].Role)
		s.Equal(id.RoleCertifier, s.issuer.issued[1].Role)
		for _, tok := range s.issuer.issued {
			s.Contains(tok.Value, doc.ID.String())
		}
	})

	s.Run("missing variables fail validation before anything persists", func() {
		tmpl := s.mustCreateTemplate()
		ctx := s.ctxAs(s.certifierID, id.RoleCertifier)
		_, _, err := s.service.CreateFromTemplate(ctx, tmpl.ID, "POA", s.clientID, s.certifierID,
			map[string]string{"client_name": "Ada Reyes"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "agent_name")
	})

	s.Run("unknown template is not found", func() {
		ctx := s.ctxAs(s.certifierID, id.RoleCertifier)
		_, _, err := s.service.CreateFromTemplate(ctx, id.NewTemplateID(), "POA", s.clientID, s.certifierID, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("client user must hold the client role", func() {
		tmpl := s.mustCreateTemplate()
		ctx := s.ctxAs(s.certifierID, id.RoleCertifier)
		_, _, err := s.service.CreateFromTemplate(ctx, tmpl.ID, "POA", s.certifierID, s.certifierID,
			map[string]string{"client_name": "x", "agent_name": "y"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Signing Flow Tests
// =============================================================================

func (s *DocumentServiceSuite) TestSigningFlow() {
	doc := s.mustCreateWorkflowDoc()
	certCtx := s.ctxAs(s.certifierID, id.RoleCertifier)

	_, err := s.service.SendForSignature(certCtx, doc.ID, s.certifierID)
	s.Require().NoError(err)

	s.grantToken("tok-client", doc, s.clientID, id.RoleClient)
	s.grantToken("tok-cert", doc, s.certifierID, id.RoleCertifier)

	anonCtx := requestcontext.WithTime(context.Background(), s.now)

	s.Run("first signature leaves the document signed", func() {
		signed, sig, err := s.service.SubmitSignature(anonCtx, "tok-client", "data:image/png;base64,AAAA")
		s.Require().NoError(err)
		s.Equal(models.StatusSigned, signed.Status)
		s.Equal(id.RoleClient, sig.Role)
	})

	s.Run("second role completes the document", func() {
		completed, _, err := s.service.SubmitSignature(anonCtx, "tok-cert", "data:image/png;base64,BBBB")
		s.Require().NoError(err)
		s.Equal(models.StatusCompleted, completed.Status)
	})

	s.Run("re-signing supersedes, never duplicates", func() {
		_, _, err := s.service.SubmitSignature(anonCtx, "tok-client", "data:image/png;base64,CCCC")
		s.Require().NoError(err)

		effective, err := s.signatures.ListEffective(context.Background(), doc.ID)
		s.Require().NoError(err)
		s.Len(effective, 2, "one effective signature per role")

		trail, err := s.signatures.ListByDocument(context.Background(), doc.ID)
		s.Require().NoError(err)
		s.Len(trail, 3, "superseded captures stay in the trail")
	})

	s.Run("completed document can be certified", func() {
		certified, err := s.service.Certify(certCtx, doc.ID, s.certifierID, "identity verified on video")
		s.Require().NoError(err)
		s.Equal(models.StatusCertified, certified.Status)
		s.Equal(s.certifierID, certified.CertifiedBy)
	})

	s.Run("certified document accepts no more signatures", func() {
		s.grantToken("tok-late", doc, s.clientID, id.RoleClient)
		_, _, err := s.service.SubmitSignature(anonCtx, "tok-late", "data:image/png;base64,DDDD")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *DocumentServiceSuite) TestSubmitSignatureRejections() {
	anonCtx := requestcontext.WithTime(context.Background(), s.now)

	s.Run("unknown token is unauthorized", func() {
		_, _, err := s.service.SubmitSignature(anonCtx, "bogus", "data:image/png;base64,AAAA")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("empty image fails validation", func() {
		doc := s.mustCreateWorkflowDoc()
		s.grantToken("tok", doc, s.clientID, id.RoleClient)
		_, _, err := s.service.SubmitSignature(anonCtx, "tok", "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("uploaded documents never collect signatures", func() {
		ctx := s.ctxAs(s.certifierID, id.RoleCertifier)
		upload, err := s.service.CreateUpload(ctx, "Scanned Deed", "deed body", s.clientID, s.certifierID)
		s.Require().NoError(err)
		s.grantToken("tok-upload", upload, s.clientID, id.RoleClient)
		_, _, err = s.service.SubmitSignature(anonCtx, "tok-upload", "data:image/png;base64,AAAA")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

// =============================================================================
// Content Freeze Tests
// =============================================================================

func (s *DocumentServiceSuite) TestRequestChanges() {
	s.Run("preview body can be replaced and re-rendered", func() {
		doc := s.mustCreateWorkflowDoc()
		ctx := s.ctxAs(s.clientID, id.RoleClient)
		updated, err := s.service.RequestChanges(ctx, doc.ID, s.clientID, "amended body")
		s.Require().NoError(err)
		s.Equal("amended body", updated.Body)
		s.Equal(models.StatusPreview, updated.Status)
	})

	s.Run("content freezes once sent for signature", func() {
		doc := s.mustCreateWorkflowDoc()
		certCtx := s.ctxAs(s.certifierID, id.RoleCertifier)
		_, err := s.service.SendForSignature(certCtx, doc.ID, s.certifierID)
		s.Require().NoError(err)

		_, err = s.service.RequestChanges(certCtx, doc.ID, s.certifierID, "too late")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("strangers are forbidden", func() {
		doc := s.mustCreateWorkflowDoc()
		stranger := s.mustSaveUser("Mallory", id.RoleClient)
		ctx := s.ctxAs(stranger, id.RoleClient)
		_, err := s.service.RequestChanges(ctx, doc.ID, stranger, "tampered")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

// =============================================================================
// Certification Tests
// =============================================================================

func (s *DocumentServiceSuite) TestCertifyAndReject() {
	s.Run("only the assigned certifier may certify", func() {
		ctx := s.ctxAs(s.certifierID, id.RoleCertifier)
		upload, err := s.service.CreateUpload(ctx, "Deed", "body", s.clientID, s.certifierID)
		s.Require().NoError(err)

		other := s.mustSaveUser("Other Certifier", id.RoleCertifier)
		otherCtx := s.ctxAs(other, id.RoleCertifier)
		_, err = s.service.Certify(otherCtx, upload.ID, other, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		certified, err := s.service.Certify(ctx, upload.ID, s.certifierID, "looks good")
		s.Require().NoError(err)
		s.Equal(models.StatusCertified, certified.Status)
	})

	s.Run("admins bypass the assignment check", func() {
		ctx := s.ctxAs(s.certifierID, id.RoleCertifier)
		upload, err := s.service.CreateUpload(ctx, "Deed", "body", s.clientID, s.certifierID)
		s.Require().NoError(err)

		admin := s.mustSaveUser("Root", id.RoleAdmin)
		adminCtx := s.ctxAs(admin, id.RoleAdmin)
		_, err = s.service.Certify(adminCtx, upload.ID, admin, "")
		s.NoError(err)
	})

	s.Run("rejection requires a reason", func() {
		ctx := s.ctxAs(s.certifierID, id.RoleCertifier)
		upload, err := s.service.CreateUpload(ctx, "Deed", "body", s.clientID, s.certifierID)
		s.Require().NoError(err)

		_, err = s.service.Reject(ctx, upload.ID, s.certifierID, "   ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		rejected, err := s.service.Reject(ctx, upload.ID, s.certifierID, "illegible scan")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, rejected.Status)
		s.Contains(rejected.Description, "illegible scan")
	})

	s.Run("certifying twice conflicts", func() {
		ctx := s.ctxAs(s.certifierID, id.RoleCertifier)
		upload, err := s.service.CreateUpload(ctx, "Deed", "body", s.clientID, s.certifierID)
		s.Require().NoError(err)

		_, err = s.service.Certify(ctx, upload.ID, s.certifierID, "")
		s.Require().NoError(err)
		_, err = s.service.Certify(ctx, upload.ID, s.certifierID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

// =============================================================================
// Batch Tests
// =============================================================================

func (s *DocumentServiceSuite) TestBatchApply() {
	ctx := s.ctxAs(s.certifierID, id.RoleCertifier)

	mustUpload := func(title string) *models.Document {
		doc, err := s.service.CreateUpload(ctx, title, "body", s.clientID, s.certifierID)
		s.Require().NoError(err)
		return doc
	}

	s.Run("a poison document never blocks its siblings", func() {
		first := mustUpload("Deed 1")
		second := mustUpload("Deed 2")
		third := mustUpload("Deed 3")

		_, err := s.service.Reject(ctx, second.ID, s.certifierID, "illegible scan")
		s.Require().NoError(err)

		results, err := s.service.BatchApply(ctx, s.certifierID, BatchCertify,
			[]id.DocumentID{first.ID, second.ID, third.ID}, "")
		s.Require().NoError(err)
		s.Require().Len(results, 3)

		s.True(results[0].OK())
		s.Equal(models.StatusCertified, results[0].Status)
		s.False(results[1].OK())
		s.Equal(dErrors.CodeInvalidState, results[1].ErrorCode)
		s.True(results[2].OK())
	})

	s.Run("reprocess returns rejected documents to processing", func() {
		doc := mustUpload("Deed 4")
		_, err := s.service.Reject(ctx, doc.ID, s.certifierID, "wrong file")
		s.Require().NoError(err)

		results, err := s.service.BatchApply(ctx, s.certifierID, BatchReprocess,
			[]id.DocumentID{doc.ID}, "")
		s.Require().NoError(err)
		s.Require().Len(results, 1)
		s.True(results[0].OK())
		s.Equal(models.StatusProcessing, results[0].Status)
	})

	s.Run("unknown action fails per item", func() {
		doc := mustUpload("Deed 5")
		results, err := s.service.BatchApply(ctx, s.certifierID, BatchAction("shred"),
			[]id.DocumentID{doc.ID}, "")
		s.Require().NoError(err)
		s.Require().Len(results, 1)
		s.Equal(dErrors.CodeValidation, results[0].ErrorCode)
	})

	s.Run("an empty batch fails validation", func() {
		_, err := s.service.BatchApply(ctx, s.certifierID, BatchCertify, nil, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Listing Tests
// =============================================================================

func (s *DocumentServiceSuite) TestListing() {
	ctx := s.ctxAs(s.certifierID, id.RoleCertifier)
	upload, err := s.service.CreateUpload(ctx, "Deed", "body", s.clientID, s.certifierID)
	s.Require().NoError(err)
	workflow := s.mustCreateWorkflowDoc()

	s.Run("pending certification lists the uploaded document only", func() {
		pending, err := s.service.ListPendingCertification(ctx, s.certifierID)
		s.Require().NoError(err)
		s.Require().Len(pending, 1)
		s.Equal(upload.ID, pending[0].ID)
	})

	s.Run("clients cannot list pending certification", func() {
		clientCtx := s.ctxAs(s.clientID, id.RoleClient)
		_, err := s.service.ListPendingCertification(clientCtx, s.clientID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("participant listing covers both branches", func() {
		docs, err := s.service.ListForParticipant(ctx, s.clientID)
		s.Require().NoError(err)
		s.Len(docs, 2)
		ids := []id.DocumentID{docs[0].ID, docs[1].ID}
		s.Contains(ids, upload.ID)
		s.Contains(ids, workflow.ID)
	})
}
