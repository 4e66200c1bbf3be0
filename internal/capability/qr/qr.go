// Package qr encodes access-code payloads for client delivery. The Encoder
// interface leaves rasterization to the deployment; the JSONEncoder emits
// the payload as a data URL the frontend can render into an actual QR image.
package qr

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Payload is what gets embedded in the QR code shared with a client.
type Payload struct {
	Type          string    `json:"type"`
	Code          string    `json:"code"`
	SessionID     string    `json:"session_id"`
	ClientName    string    `json:"client_name"`
	DocumentTitle string    `json:"document_title"`
	CertifierName string    `json:"certifier_name"`
	DirectURL     string    `json:"direct_url"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Encoder turns a payload into an embeddable representation.
type Encoder interface {
	Encode(payload Payload) (string, error)
}

// JSONEncoder encodes the payload as a base64 JSON data URL.
type JSONEncoder struct{}

func NewJSONEncoder() *JSONEncoder {
	return &JSONEncoder{}
}

func (JSONEncoder) Encode(payload Payload) (string, error) {
	if payload.Code == "" {
		return "", fmt.Errorf("encode qr: code is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:application/json;base64," + base64.StdEncoding.EncodeToString(raw), nil
}
