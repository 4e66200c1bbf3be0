// Package video issues join credentials for RON session rooms. The
// CredentialIssuer interface keeps the engine independent of the conference
// provider; JitsiIssuer signs Jitsi-compatible room JWTs.
package video

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "ronflow/pkg/domain"
)

// Credential is what a participant needs to join a session room.
type Credential struct {
	RoomName  string    `json:"room_name"`
	RoomURL   string    `json:"room_url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CredentialIssuer signs room join credentials.
type CredentialIssuer interface {
	Issue(sessionID id.SessionID, displayName string, moderator bool, now time.Time) (*Credential, error)
}

// RoomName derives the stable conference room name for a session:
// "ron-" plus the session ID lowercased with non-alphanumerics stripped.
func RoomName(sessionID id.SessionID) string {
	var b strings.Builder
	b.WriteString("ron-")
	for _, r := range strings.ToLower(sessionID.String()) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// JitsiIssuer signs HS256 room tokens in the shape Jitsi deployments expect.
type JitsiIssuer struct {
	appID      string
	domain     string
	signingKey []byte
	ttl        time.Duration
}

func NewJitsiIssuer(appID, domain, signingKey string, ttl time.Duration) *JitsiIssuer {
	return &JitsiIssuer{
		appID:      appID,
		domain:     domain,
		signingKey: []byte(signingKey),
		ttl:        ttl,
	}
}

func (i *JitsiIssuer) Issue(sessionID id.SessionID, displayName string, moderator bool, now time.Time) (*Credential, error) {
	room := RoomName(sessionID)
	expiresAt := now.Add(i.ttl)

	claims := jwt.MapClaims{
		"iss":  i.appID,
		"sub":  i.domain,
		"aud":  "jitsi",
		"room": room,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
		"context": map[string]any{
			"user": map[string]any{
				"name":      displayName,
				"moderator": moderator,
			},
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
	if err != nil {
		return nil, fmt.Errorf("sign room token: %w", err)
	}

	return &Credential{
		RoomName:  room,
		RoomURL:   fmt.Sprintf("https://%s/%s", i.domain, room),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}
