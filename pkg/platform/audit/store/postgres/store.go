package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "ronflow/pkg/domain"
	audit "ronflow/pkg/platform/audit"
)

// Store persists audit events in the audit_events table. Rows are
// append-only; nothing in the engine updates or deletes them.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an audit event. Detail is stored as JSONB.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}

	var userID, documentID, sessionID *uuid.UUID
	if !event.UserID.IsZero() {
		uid := uuid.UUID(event.UserID)
		userID = &uid
	}
	if !event.DocumentID.IsZero() {
		did := uuid.UUID(event.DocumentID)
		documentID = &did
	}
	if !event.SessionID.IsZero() {
		sid := uuid.UUID(event.SessionID)
		sessionID = &sid
	}

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, action,
			user_id, document_id, session_id,
			detail, request_id, client_ip
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.New(),
		string(event.Category),
		event.Timestamp,
		event.Action,
		userID,
		documentID,
		sessionID,
		detail,
		event.RequestID,
		event.ClientIP,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByUser returns events for a specific user, newest first.
func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectClause+`
		WHERE user_id = $1
		ORDER BY timestamp DESC
	`, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListByDocument returns events touching a document, newest first.
func (s *Store) ListByDocument(ctx context.Context, documentID id.DocumentID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectClause+`
		WHERE document_id = $1
		ORDER BY timestamp DESC
	`, uuid.UUID(documentID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectClause+`
		ORDER BY timestamp DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

const selectClause = `
	SELECT category, timestamp, action,
	       user_id, document_id, session_id,
	       detail, request_id, client_ip
	FROM audit_events
`

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			category   string
			event      audit.Event
			userID     *uuid.UUID
			documentID *uuid.UUID
			sessionID  *uuid.UUID
			detail     []byte
		)

		err := rows.Scan(
			&category,
			&event.Timestamp,
			&event.Action,
			&userID,
			&documentID,
			&sessionID,
			&detail,
			&event.RequestID,
			&event.ClientIP,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Category = audit.EventCategory(category)
		if userID != nil {
			event.UserID = id.UserID(*userID)
		}
		if documentID != nil {
			event.DocumentID = id.DocumentID(*documentID)
		}
		if sessionID != nil {
			event.SessionID = id.SessionID(*sessionID)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &event.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal audit detail: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}
