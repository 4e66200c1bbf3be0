package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
)

// DefaultTTL is how long a client access code stays redeemable.
const DefaultTTL = 24 * time.Hour

// CodeStatus is the lifecycle state of a client access code.
type CodeStatus string

const (
	CodeActive  CodeStatus = "active"
	CodeUsed    CodeStatus = "used"
	CodeExpired CodeStatus = "expired"
)

// ClientAccessCode lets a client reach their RON session without a platform
// account: the certifier sends the code out of band and the client redeems
// it at the public endpoint.
//
// Invariants:
//   - Value is unique and never reused
//   - A used code stays redeemable until expiry (clients re-enter the room)
//   - UsedAt records the first redemption only
type ClientAccessCode struct {
	ID          id.CodeID     `json:"id"`
	Value       string        `json:"value"`
	SessionID   id.SessionID  `json:"session_id"`
	DocumentID  id.DocumentID `json:"document_id"`
	ClientID    id.UserID     `json:"client_id"`
	CertifierID id.UserID     `json:"certifier_id"`
	Status      CodeStatus    `json:"status"`
	IssuedAt    time.Time     `json:"issued_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
	UsedAt      *time.Time    `json:"used_at,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewClientAccessCode mints a code for a session. The value format is
// RON-<6 digits>-<12 hex>, short enough to read over the phone and long
// enough that guessing is impractical.
func NewClientAccessCode(sessionID id.SessionID, documentID id.DocumentID, clientID, certifierID id.UserID, ttl time.Duration, now time.Time) (*ClientAccessCode, error) {
	if sessionID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "access code requires a session")
	}
	if clientID.IsZero() || certifierID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "access code requires client and certifier")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	value, err := generateValue(now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate access code")
	}
	return &ClientAccessCode{
		ID:          id.NewCodeID(),
		Value:       value,
		SessionID:   sessionID,
		DocumentID:  documentID,
		ClientID:    clientID,
		CertifierID: certifierID,
		Status:      CodeActive,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
		UpdatedAt:   now,
	}, nil
}

func generateValue(now time.Time) (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	millis := now.UnixMilli() % 1_000_000
	return fmt.Sprintf("RON-%06d-%s", millis, strings.ToUpper(hex.EncodeToString(buf))), nil
}

// Expired reports whether the code is past its TTL as of now, regardless of
// its stored status.
func (c *ClientAccessCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Redeemable reports whether a redemption should succeed right now. Used
// codes stay redeemable so the client can re-enter the room.
func (c *ClientAccessCode) Redeemable(now time.Time) error {
	if c.Status == CodeExpired || c.Expired(now) {
		return dErrors.New(dErrors.CodeExpired, "access code has expired")
	}
	return nil
}

// ApplyRedemption marks the first use; later redemptions keep the original
// UsedAt.
func (c *ClientAccessCode) ApplyRedemption(now time.Time) {
	if c.Status == CodeActive {
		c.Status = CodeUsed
		c.UsedAt = &now
	}
	c.UpdatedAt = now
}

// ApplyExpiry demotes the code. Idempotent.
func (c *ClientAccessCode) ApplyExpiry(now time.Time) {
	if c.Status == CodeExpired {
		return
	}
	c.Status = CodeExpired
	c.UpdatedAt = now
}
