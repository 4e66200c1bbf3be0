package models

import (
	"time"

	"github.com/mssola/useragent"

	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
)

// Signature is a captured signature image plus the context it was captured
// in. The effective signature for a (document, role) pair is the one with
// Superseded=false; re-signing supersedes the previous capture instead of
// deleting it, preserving the evidence trail.
type Signature struct {
	ID         id.SignatureID `json:"id"`
	DocumentID id.DocumentID  `json:"document_id"`
	UserID     id.UserID      `json:"user_id"`
	Role       id.Role        `json:"role"`
	// ImageData is the signature image as a data URL (base64 PNG).
	ImageData string `json:"image_data"`
	// ClientContext is a human-readable browser/OS summary parsed from the
	// User-Agent at capture time.
	ClientContext string    `json:"client_context,omitempty"`
	OriginIP      string    `json:"origin_ip,omitempty"`
	CapturedAt    time.Time `json:"captured_at"`
	Superseded    bool      `json:"superseded"`
}

// NewSignature validates and constructs a signature capture.
func NewSignature(sigID id.SignatureID, documentID id.DocumentID, userID id.UserID, role id.Role, imageData, originIP, userAgent string, now time.Time) (*Signature, error) {
	if imageData == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "signature image is required")
	}
	if !role.SigningRole() {
		return nil, dErrors.New(dErrors.CodeValidation, "role cannot sign documents")
	}
	return &Signature{
		ID:            sigID,
		DocumentID:    documentID,
		UserID:        userID,
		Role:          role,
		ImageData:     imageData,
		ClientContext: summarizeUserAgent(userAgent),
		OriginIP:      originIP,
		CapturedAt:    now,
	}, nil
}

// summarizeUserAgent condenses a raw User-Agent into "Browser x.y on OS".
func summarizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	summary := name
	if version != "" {
		summary += " " + version
	}
	if os := ua.OS(); os != "" {
		summary += " on " + os
	}
	return summary
}
