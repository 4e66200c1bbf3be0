package models

import (
	"time"

	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
)

// DocumentStatus is the lifecycle state of a document. Two branches share
// the type: template-driven documents move draft → preview →
// pending_signature → signed → completed, while uploaded documents move
// uploaded → processing → certified | rejected.
type DocumentStatus string

const (
	StatusDraft            DocumentStatus = "draft"
	StatusPreview          DocumentStatus = "preview"
	StatusPendingSignature DocumentStatus = "pending_signature"
	StatusSigned           DocumentStatus = "signed"
	StatusCompleted        DocumentStatus = "completed"

	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusCertified  DocumentStatus = "certified"
	StatusRejected   DocumentStatus = "rejected"
)

// DocumentBranch distinguishes the two intake paths.
type DocumentBranch string

const (
	BranchWorkflow DocumentBranch = "workflow"
	BranchUpload   DocumentBranch = "upload"
)

// Document is the anchor entity of the notarization workflow.
//
// Invariants:
//   - Title is non-empty
//   - Branch is immutable after construction
//   - Workflow documents never enter upload-branch statuses and vice versa,
//     except that both branches terminate in certified or rejected
//   - CreatedAt is immutable; UpdatedAt moves on every transition
type Document struct {
	ID          id.DocumentID  `json:"id"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Status      DocumentStatus `json:"status"`
	Branch      DocumentBranch `json:"branch"`
	TemplateID  id.TemplateID  `json:"template_id,omitempty"`
	ClientID    id.UserID      `json:"client_id"`
	CertifierID id.UserID      `json:"certifier_id"`
	// Description carries free-form notes; certify and reject append theirs.
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CertifiedAt *time.Time `json:"certified_at,omitempty"`
	CertifiedBy id.UserID  `json:"certified_by,omitempty"`
}

// NewFromTemplate constructs a workflow-branch document in draft status.
// The service renders the template body and applies the preview transition
// in the same operation.
func NewFromTemplate(docID id.DocumentID, templateID id.TemplateID, title string, clientID, certifierID id.UserID, now time.Time) (*Document, error) {
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document title cannot be empty")
	}
	if clientID.IsZero() || certifierID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document requires client and certifier")
	}
	return &Document{
		ID:          docID,
		Title:       title,
		Status:      StatusDraft,
		Branch:      BranchWorkflow,
		TemplateID:  templateID,
		ClientID:    clientID,
		CertifierID: certifierID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// NewUpload constructs an upload-branch document in uploaded status.
func NewUpload(docID id.DocumentID, title, body string, clientID, certifierID id.UserID, now time.Time) (*Document, error) {
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document title cannot be empty")
	}
	if clientID.IsZero() || certifierID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document requires client and certifier")
	}
	return &Document{
		ID:          docID,
		Title:       title,
		Body:        body,
		Status:      StatusUploaded,
		Branch:      BranchUpload,
		ClientID:    clientID,
		CertifierID: certifierID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsParticipant reports whether userID is the client or certifier on this
// document. Admins bypass this check at the service layer.
func (d *Document) IsParticipant(userID id.UserID) bool {
	return d.ClientID == userID || d.CertifierID == userID
}

// CanPreview checks the draft → preview transition.
func (d *Document) CanPreview() error {
	if d.Status != StatusDraft {
		return dErrors.New(dErrors.CodeInvariantViolation, "document is not in draft")
	}
	return nil
}

// ApplyPreview sets the rendered body and moves the document to preview.
// Call CanPreview first to validate the transition.
func (d *Document) ApplyPreview(body string, now time.Time) {
	d.Body = body
	d.Status = StatusPreview
	d.UpdatedAt = now
}

// CanReplaceContent checks whether the body may be swapped in place.
// Only preview documents accept content changes; anything later would
// invalidate captured signatures.
func (d *Document) CanReplaceContent() error {
	if d.Status != StatusPreview {
		return dErrors.New(dErrors.CodeInvariantViolation, "document content is frozen after preview")
	}
	return nil
}

// ApplyReplaceContent swaps the body, keeping the document in preview.
func (d *Document) ApplyReplaceContent(body string, now time.Time) {
	d.Body = body
	d.UpdatedAt = now
}

// CanSendForSignature checks the preview → pending_signature transition.
func (d *Document) CanSendForSignature() error {
	if d.Status != StatusPreview {
		return dErrors.New(dErrors.CodeInvariantViolation, "document is not in preview")
	}
	return nil
}

// ApplySendForSignature moves the document to pending_signature.
func (d *Document) ApplySendForSignature(now time.Time) {
	d.Status = StatusPendingSignature
	d.UpdatedAt = now
}

// CanAcceptSignature checks whether a signature submission is valid from the
// current status. Re-signing while signed is allowed; the new signature
// supersedes the old one for that role.
func (d *Document) CanAcceptSignature() error {
	if d.Branch != BranchWorkflow {
		return dErrors.New(dErrors.CodeInvariantViolation, "uploaded documents do not collect signatures")
	}
	switch d.Status {
	case StatusPreview, StatusPendingSignature, StatusSigned:
		return nil
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, "document does not accept signatures in status "+string(d.Status))
	}
}

// ApplySignatureProgress advances status after a signature was recorded.
// With every signing role covered the document completes; otherwise it is
// signed and waiting on the other party.
func (d *Document) ApplySignatureProgress(allRolesSigned bool, now time.Time) {
	if allRolesSigned {
		d.Status = StatusCompleted
	} else {
		d.Status = StatusSigned
	}
	d.UpdatedAt = now
}

// CanStartProcessing checks the uploaded → processing reservation.
func (d *Document) CanStartProcessing() error {
	if d.Branch != BranchUpload {
		return dErrors.New(dErrors.CodeInvariantViolation, "only uploaded documents are processed")
	}
	switch d.Status {
	case StatusUploaded, StatusRejected:
		return nil
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, "document cannot start processing from status "+string(d.Status))
	}
}

// ApplyStartProcessing moves an uploaded document to processing.
func (d *Document) ApplyStartProcessing(now time.Time) {
	d.Status = StatusProcessing
	d.UpdatedAt = now
}

// CanCertify checks whether the document may be certified. Upload-branch
// documents certify from uploaded or processing; workflow-branch documents
// certify once fully signed.
func (d *Document) CanCertify() error {
	switch d.Branch {
	case BranchUpload:
		switch d.Status {
		case StatusUploaded, StatusProcessing:
			return nil
		case StatusCertified:
			return dErrors.New(dErrors.CodeInvariantViolation, "document is already certified")
		}
	case BranchWorkflow:
		switch d.Status {
		case StatusSigned, StatusCompleted:
			return nil
		case StatusCertified:
			return dErrors.New(dErrors.CodeInvariantViolation, "document is already certified")
		}
	}
	return dErrors.New(dErrors.CodeInvariantViolation, "document cannot be certified from status "+string(d.Status))
}

// ApplyCertification marks the document certified.
func (d *Document) ApplyCertification(certifierID id.UserID, notes string, now time.Time) {
	d.Status = StatusCertified
	d.CertifiedAt = &now
	d.CertifiedBy = certifierID
	if notes != "" {
		d.Description = appendNote(d.Description, notes)
	}
	d.UpdatedAt = now
}

// CanReject checks whether the document may be rejected.
func (d *Document) CanReject() error {
	if d.Branch != BranchUpload {
		return dErrors.New(dErrors.CodeInvariantViolation, "only uploaded documents are rejected")
	}
	switch d.Status {
	case StatusUploaded, StatusProcessing:
		return nil
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, "document cannot be rejected from status "+string(d.Status))
	}
}

// ApplyRejection marks the document rejected with the given reason.
func (d *Document) ApplyRejection(reason string, now time.Time) {
	d.Status = StatusRejected
	if reason != "" {
		d.Description = appendNote(d.Description, reason)
	}
	d.UpdatedAt = now
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
