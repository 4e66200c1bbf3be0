package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
)

// DefaultTTL is how long a signature token stays redeemable.
const DefaultTTL = 24 * time.Hour

// SignatureToken grants one signer access to one document's signing flow.
// The value is a 64-char hex string from a CSPRNG; possession of the value
// is the only credential a signer needs.
type SignatureToken struct {
	Value      string        `json:"value"`
	DocumentID id.DocumentID `json:"document_id"`
	UserID     id.UserID     `json:"user_id"`
	Role       id.Role       `json:"role"`
	IssuedBy   id.UserID     `json:"issued_by"`
	IssuedAt   time.Time     `json:"issued_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

// NewSignatureToken mints a token for (document, signer, role).
func NewSignatureToken(documentID id.DocumentID, userID id.UserID, role id.Role, issuedBy id.UserID, ttl time.Duration, now time.Time) (*SignatureToken, error) {
	if !role.SigningRole() {
		return nil, dErrors.New(dErrors.CodeValidation, "role cannot sign documents")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &SignatureToken{
		Value:      hex.EncodeToString(raw),
		DocumentID: documentID,
		UserID:     userID,
		Role:       role,
		IssuedBy:   issuedBy,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}, nil
}

// Expired reports whether the token is past its TTL at the given time.
func (t *SignatureToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
