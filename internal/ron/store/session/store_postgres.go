package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ronflow/internal/ron/models"
	id "ronflow/pkg/domain"
	"ronflow/pkg/platform/sentinel"
)

// PostgresStore persists RON sessions in PostgreSQL. Execute uses
// SELECT ... FOR UPDATE so the first-join activation happens exactly once
// under concurrent joiners.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `
	id, document_id, client_id, certifier_id, status, room_name,
	scheduled_for, started_at, ended_at, recording_ref, certify_failed, created_at, updated_at
`

func (s *PostgresStore) Create(ctx context.Context, sess *models.RonSession) error {
	query := `
		INSERT INTO ron_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(sess.ID),
		uuid.UUID(sess.DocumentID),
		uuid.UUID(sess.ClientID),
		uuid.UUID(sess.CertifierID),
		string(sess.Status),
		sess.RoomName,
		sess.ScheduledFor,
		sess.StartedAt,
		sess.EndedAt,
		sess.RecordingRef,
		sess.CertifyFailed,
		sess.CreatedAt,
		sess.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("session already exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.RonSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM ron_sessions WHERE id = $1`
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, uuid.UUID(sessionID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

// Execute atomically validates and mutates a session. The FOR UPDATE row lock
// is held during both callbacks; a losing joiner re-validates against the
// winner's committed state and sees the session already active.
func (s *PostgresStore) Execute(ctx context.Context, sessionID id.SessionID, validate func(*models.RonSession) error, mutate func(*models.RonSession)) (*models.RonSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin session update: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + sessionColumns + ` FROM ron_sessions WHERE id = $1 FOR UPDATE`
	sess, err := scanSession(tx.QueryRowContext(ctx, query, uuid.UUID(sessionID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("lock session: %w", err)
	}

	if err := validate(sess); err != nil {
		return nil, err
	}
	mutate(sess)

	update := `
		UPDATE ron_sessions
		SET status = $2, started_at = $3, ended_at = $4,
		    recording_ref = $5, certify_failed = $6, updated_at = $7
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		uuid.UUID(sess.ID),
		string(sess.Status),
		sess.StartedAt,
		sess.EndedAt,
		sess.RecordingRef,
		sess.CertifyFailed,
		sess.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit session update: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) ListByParticipant(ctx context.Context, userID id.UserID) ([]*models.RonSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM ron_sessions
		WHERE client_id = $1 OR certifier_id = $1
		ORDER BY scheduled_for ASC
	`
	return s.querySessions(ctx, query, uuid.UUID(userID))
}

func (s *PostgresStore) ListStale(ctx context.Context, now time.Time, scheduledGrace, activeGrace time.Duration) ([]*models.RonSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM ron_sessions
		WHERE (status = 'scheduled' AND scheduled_for < $1)
		   OR (status = 'active' AND started_at IS NOT NULL AND started_at < $2)
		ORDER BY scheduled_for ASC
	`
	return s.querySessions(ctx, query, now.Add(-scheduledGrace), now.Add(-activeGrace))
}

func (s *PostgresStore) querySessions(ctx context.Context, query string, args ...any) ([]*models.RonSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.RonSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

type sessionRow interface {
	Scan(dest ...any) error
}

func scanSession(row sessionRow) (*models.RonSession, error) {
	var (
		sess        models.RonSession
		sessionID   uuid.UUID
		documentID  uuid.UUID
		clientID    uuid.UUID
		certifierID uuid.UUID
		status      string
		startedAt   sql.NullTime
		endedAt     sql.NullTime
	)
	err := row.Scan(
		&sessionID, &documentID, &clientID, &certifierID, &status, &sess.RoomName,
		&sess.ScheduledFor, &startedAt, &endedAt, &sess.RecordingRef,
		&sess.CertifyFailed, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.ID = id.SessionID(sessionID)
	sess.DocumentID = id.DocumentID(documentID)
	sess.ClientID = id.UserID(clientID)
	sess.CertifierID = id.UserID(certifierID)
	sess.Status = models.SessionStatus(status)
	if startedAt.Valid {
		sess.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	return &sess, nil
}
