// Package domain holds the typed identifiers and closed enumerations shared
// across the workflow modules. Typed UUIDs prevent cross-entity ID mixups at
// compile time; parsing enforces the trust-boundary invariant that IDs are
// valid, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "ronflow/pkg/domain-errors"
)

type (
	// UserID identifies a platform user (client, certifier or admin).
	UserID uuid.UUID
	// DocumentID identifies a Document, the anchor entity.
	DocumentID uuid.UUID
	// SessionID identifies a RON session.
	SessionID uuid.UUID
	// SignatureID identifies a captured signature.
	SignatureID uuid.UUID
	// TemplateID identifies a document template.
	TemplateID uuid.UUID
	// CodeID identifies a client access code record (the shareable code
	// value itself is a separate, human-readable string).
	CodeID uuid.UUID
)

func (id UserID) String() string      { return uuid.UUID(id).String() }
func (id DocumentID) String() string  { return uuid.UUID(id).String() }
func (id SessionID) String() string   { return uuid.UUID(id).String() }
func (id SignatureID) String() string { return uuid.UUID(id).String() }
func (id TemplateID) String() string  { return uuid.UUID(id).String() }
func (id CodeID) String() string      { return uuid.UUID(id).String() }

func (id UserID) IsZero() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsZero() bool  { return uuid.UUID(id) == uuid.Nil }
func (id TemplateID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// The text forms below keep the canonical UUID string on the wire and in
// JSON bodies.

func (id UserID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id DocumentID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id SessionID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id SignatureID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id TemplateID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id CodeID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(raw []byte) error {
	parsed, err := uuid.ParseBytes(raw)
	if err != nil {
		return err
	}
	*id = UserID(parsed)
	return nil
}

func (id *DocumentID) UnmarshalText(raw []byte) error {
	parsed, err := uuid.ParseBytes(raw)
	if err != nil {
		return err
	}
	*id = DocumentID(parsed)
	return nil
}

func (id *SessionID) UnmarshalText(raw []byte) error {
	parsed, err := uuid.ParseBytes(raw)
	if err != nil {
		return err
	}
	*id = SessionID(parsed)
	return nil
}

func (id *SignatureID) UnmarshalText(raw []byte) error {
	parsed, err := uuid.ParseBytes(raw)
	if err != nil {
		return err
	}
	*id = SignatureID(parsed)
	return nil
}

func (id *TemplateID) UnmarshalText(raw []byte) error {
	parsed, err := uuid.ParseBytes(raw)
	if err != nil {
		return err
	}
	*id = TemplateID(parsed)
	return nil
}

func (id *CodeID) UnmarshalText(raw []byte) error {
	parsed, err := uuid.ParseBytes(raw)
	if err != nil {
		return err
	}
	*id = CodeID(parsed)
	return nil
}

// NewUserID returns a fresh random user identifier.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewDocumentID returns a fresh random document identifier.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewSessionID returns a fresh random session identifier.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// NewSignatureID returns a fresh random signature identifier.
func NewSignatureID() SignatureID { return SignatureID(uuid.New()) }

// NewTemplateID returns a fresh random template identifier.
func NewTemplateID() TemplateID { return TemplateID(uuid.New()) }

// NewCodeID returns a fresh random access-code record identifier.
func NewCodeID() CodeID { return CodeID(uuid.New()) }

func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}

// ParseUserID parses and validates a user ID from its string form.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw)
	return UserID(parsed), err
}

// ParseDocumentID parses and validates a document ID from its string form.
func ParseDocumentID(raw string) (DocumentID, error) {
	parsed, err := parseUUID(raw)
	return DocumentID(parsed), err
}

// ParseSessionID parses and validates a session ID from its string form.
func ParseSessionID(raw string) (SessionID, error) {
	parsed, err := parseUUID(raw)
	return SessionID(parsed), err
}

// ParseTemplateID parses and validates a template ID from its string form.
func ParseTemplateID(raw string) (TemplateID, error) {
	parsed, err := parseUUID(raw)
	return TemplateID(parsed), err
}
