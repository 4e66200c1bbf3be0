package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "ronflow/pkg/domain"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func newWorkflowDoc(t *testing.T) *Document {
	t.Helper()
	doc, err := NewFromTemplate(id.NewDocumentID(), id.NewTemplateID(), "Power of Attorney", id.NewUserID(), id.NewUserID(), testNow)
	require.NoError(t, err)
	return doc
}

func newUploadDoc(t *testing.T) *Document {
	t.Helper()
	doc, err := NewUpload(id.NewDocumentID(), "Scanned Deed", "deed body", id.NewUserID(), id.NewUserID(), testNow)
	require.NoError(t, err)
	return doc
}

func TestNewFromTemplate(t *testing.T) {
	t.Run("starts in draft on the workflow branch", func(t *testing.T) {
		doc := newWorkflowDoc(t)
		assert.Equal(t, StatusDraft, doc.Status)
		assert.Equal(t, BranchWorkflow, doc.Branch)
	})

	t.Run("rejects empty title", func(t *testing.T) {
		_, err := NewFromTemplate(id.NewDocumentID(), id.NewTemplateID(), "", id.NewUserID(), id.NewUserID(), testNow)
		assert.Error(t, err)
	})

	t.Run("rejects missing parties", func(t *testing.T) {
		_, err := NewFromTemplate(id.NewDocumentID(), id.NewTemplateID(), "Deed", id.UserID{}, id.NewUserID(), testNow)
		assert.Error(t, err)
	})
}

func TestWorkflowLifecycle(t *testing.T) {
	t.Run("full path draft through completed", func(t *testing.T) {
		doc := newWorkflowDoc(t)

		require.NoError(t, doc.CanPreview())
		doc.ApplyPreview("rendered body", testNow)
		assert.Equal(t, StatusPreview, doc.Status)
		assert.Equal(t, "rendered body", doc.Body)

		require.NoError(t, doc.CanSendForSignature())
		doc.ApplySendForSignature(testNow)
		assert.Equal(t, StatusPendingSignature, doc.Status)

		require.NoError(t, doc.CanAcceptSignature())
		doc.ApplySignatureProgress(false, testNow)
		assert.Equal(t, StatusSigned, doc.Status)

		require.NoError(t, doc.CanAcceptSignature())
		doc.ApplySignatureProgress(true, testNow)
		assert.Equal(t, StatusCompleted, doc.Status)

		require.NoError(t, doc.CanCertify())
		certifier := doc.CertifierID
		doc.ApplyCertification(certifier, "all parties verified", testNow)
		assert.Equal(t, StatusCertified, doc.Status)
		assert.Equal(t, certifier, doc.CertifiedBy)
		require.NotNil(t, doc.CertifiedAt)
		assert.Equal(t, testNow, *doc.CertifiedAt)
	})

	t.Run("content is frozen after preview", func(t *testing.T) {
		doc := newWorkflowDoc(t)
		doc.ApplyPreview("v1", testNow)

		require.NoError(t, doc.CanReplaceContent())
		doc.ApplyReplaceContent("v2", testNow)
		assert.Equal(t, "v2", doc.Body)
		assert.Equal(t, StatusPreview, doc.Status)

		doc.ApplySendForSignature(testNow)
		assert.Error(t, doc.CanReplaceContent())
	})

	t.Run("signatures accepted from preview onward but not after completion", func(t *testing.T) {
		doc := newWorkflowDoc(t)
		assert.Error(t, doc.CanAcceptSignature(), "draft does not accept signatures")

		doc.ApplyPreview("body", testNow)
		assert.NoError(t, doc.CanAcceptSignature())

		doc.ApplySignatureProgress(true, testNow)
		assert.Error(t, doc.CanAcceptSignature(), "completed does not accept signatures")
	})

	t.Run("cannot certify before fully signed", func(t *testing.T) {
		doc := newWorkflowDoc(t)
		doc.ApplyPreview("body", testNow)
		assert.Error(t, doc.CanCertify())

		doc.ApplySignatureProgress(false, testNow)
		assert.NoError(t, doc.CanCertify(), "signed documents may be certified")
	})

	t.Run("workflow documents are never rejected", func(t *testing.T) {
		doc := newWorkflowDoc(t)
		assert.Error(t, doc.CanReject())
	})
}

func TestUploadLifecycle(t *testing.T) {
	t.Run("certify straight from uploaded", func(t *testing.T) {
		doc := newUploadDoc(t)
		require.NoError(t, doc.CanCertify())
		doc.ApplyCertification(doc.CertifierID, "", testNow)
		assert.Equal(t, StatusCertified, doc.Status)
	})

	t.Run("certifying twice is reported as already certified", func(t *testing.T) {
		doc := newUploadDoc(t)
		doc.ApplyCertification(doc.CertifierID, "", testNow)
		err := doc.CanCertify()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already certified")
	})

	t.Run("reject records the reason", func(t *testing.T) {
		doc := newUploadDoc(t)
		require.NoError(t, doc.CanReject())
		doc.ApplyRejection("illegible scan", testNow)
		assert.Equal(t, StatusRejected, doc.Status)
		assert.Contains(t, doc.Description, "illegible scan")
	})

	t.Run("rejected documents can be reprocessed", func(t *testing.T) {
		doc := newUploadDoc(t)
		doc.ApplyRejection("blurry", testNow)

		require.NoError(t, doc.CanStartProcessing())
		doc.ApplyStartProcessing(testNow)
		assert.Equal(t, StatusProcessing, doc.Status)
		assert.NoError(t, doc.CanCertify())
	})

	t.Run("uploaded documents never collect signatures", func(t *testing.T) {
		doc := newUploadDoc(t)
		assert.Error(t, doc.CanAcceptSignature())
	})

	t.Run("certified documents cannot be rejected or reprocessed", func(t *testing.T) {
		doc := newUploadDoc(t)
		doc.ApplyCertification(doc.CertifierID, "", testNow)
		assert.Error(t, doc.CanReject())
		assert.Error(t, doc.CanStartProcessing())
	})

	t.Run("notes accumulate in description", func(t *testing.T) {
		doc := newUploadDoc(t)
		doc.ApplyRejection("first pass failed", testNow)
		doc.ApplyStartProcessing(testNow)
		doc.ApplyCertification(doc.CertifierID, "resolved on second pass", testNow)
		assert.Contains(t, doc.Description, "first pass failed")
		assert.Contains(t, doc.Description, "resolved on second pass")
	})
}

func TestIsParticipant(t *testing.T) {
	doc := newWorkflowDoc(t)
	assert.True(t, doc.IsParticipant(doc.ClientID))
	assert.True(t, doc.IsParticipant(doc.CertifierID))
	assert.False(t, doc.IsParticipant(id.NewUserID()))
}
