package audit

import (
	"context"
	"time"

	id "ronflow/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention.
	// Examples: document certified, document signed, session completed.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to access monitoring and forensics.
	// Examples: access code redemptions, credential issuance to participants.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled or aggregated with shorter retention.
	// Examples: document creation, session scheduling, reaper sweeps.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key workflow actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category   EventCategory
	Timestamp  time.Time
	Action     string
	UserID     id.UserID
	DocumentID id.DocumentID
	SessionID  id.SessionID
	// Detail carries event-specific key/value context (code values, room
	// names, rejection reasons). Values must not contain raw PII.
	Detail map[string]string
	// RequestID is the correlation ID from the HTTP request context.
	RequestID string
	// ClientIP is recorded for access-relevant events (code redemption,
	// credential issuance).
	ClientIP string
}

type AuditEvent string

const (
	// Document events
	EventDocumentCreated   AuditEvent = "document_created"
	EventDocumentSent      AuditEvent = "document_sent_for_signature"
	EventDocumentSigned    AuditEvent = "document_signed"
	EventDocumentCertified AuditEvent = "document_certified"
	EventDocumentRejected  AuditEvent = "document_rejected"

	// Session events
	EventSessionCreated   AuditEvent = "ron_session_created"
	EventSessionStarted   AuditEvent = "ron_session_started"
	EventSessionCompleted AuditEvent = "ron_session_completed"
	EventSessionCancelled AuditEvent = "ron_session_cancelled"

	// Access code events
	EventCodeGenerated   AuditEvent = "ron_client_code_generated"
	EventCodeUsed        AuditEvent = "ron_client_code_used"
	EventCodeRegenerated AuditEvent = "ron_client_code_regenerated"

	// Signature token events
	EventTokenIssued AuditEvent = "signature_token_issued"

	// Maintenance events
	EventReaperSwept AuditEvent = "reaper_swept"
)

// eventCategories maps each audit event to its category.
// Compliance: legal/regulatory significance, long retention required.
// Security: access monitoring and forensics.
// Operations: debugging, operational visibility, can be sampled.
var eventCategories = map[AuditEvent]EventCategory{
	// Compliance events - the notarization evidence chain
	EventDocumentSigned:    CategoryCompliance,
	EventDocumentCertified: CategoryCompliance,
	EventDocumentRejected:  CategoryCompliance,
	EventSessionCompleted:  CategoryCompliance,

	// Security events - who got access, and when
	EventCodeUsed:        CategorySecurity,
	EventCodeRegenerated: CategorySecurity,
	EventTokenIssued:     CategorySecurity,
	EventSessionStarted:  CategorySecurity,

	// Operations events - routine activity
	EventDocumentCreated:  CategoryOperations,
	EventDocumentSent:     CategoryOperations,
	EventSessionCreated:   CategoryOperations,
	EventSessionCancelled: CategoryOperations,
	EventCodeGenerated:    CategoryOperations,
	EventReaperSwept:      CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store is the append-only persistence behind the publisher.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
	ListByDocument(ctx context.Context, documentID id.DocumentID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Publisher is what services emit through. Implementations decide whether a
// failed append fails the business operation.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}
