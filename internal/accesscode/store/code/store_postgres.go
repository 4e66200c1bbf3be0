package code

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ronflow/internal/accesscode/models"
	id "ronflow/pkg/domain"
	"ronflow/pkg/platform/sentinel"
)

// PostgresStore persists access codes in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const codeColumns = `
	id, value, session_id, document_id, client_id, certifier_id,
	status, issued_at, expires_at, used_at, updated_at
`

func (s *PostgresStore) Save(ctx context.Context, c *models.ClientAccessCode) error {
	query := `
		INSERT INTO access_codes (` + codeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(c.ID),
		c.Value,
		uuid.UUID(c.SessionID),
		uuid.UUID(c.DocumentID),
		uuid.UUID(c.ClientID),
		uuid.UUID(c.CertifierID),
		string(c.Status),
		c.IssuedAt,
		c.ExpiresAt,
		c.UsedAt,
		c.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("access code already exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert access code: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByValue(ctx context.Context, value string) (*models.ClientAccessCode, error) {
	query := `SELECT ` + codeColumns + ` FROM access_codes WHERE value = $1`
	c, err := scanCode(s.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("access code not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find access code: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) FindActiveBySession(ctx context.Context, sessionID id.SessionID) (*models.ClientAccessCode, error) {
	query := `
		SELECT ` + codeColumns + `
		FROM access_codes
		WHERE session_id = $1 AND status = 'active'
		ORDER BY issued_at DESC
		LIMIT 1
	`
	c, err := scanCode(s.db.QueryRowContext(ctx, query, uuid.UUID(sessionID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no active code for session: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find active code: %w", err)
	}
	return c, nil
}

// Execute atomically validates and mutates a code under a FOR UPDATE row
// lock.
func (s *PostgresStore) Execute(ctx context.Context, value string, validate func(*models.ClientAccessCode) error, mutate func(*models.ClientAccessCode)) (*models.ClientAccessCode, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin code update: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + codeColumns + ` FROM access_codes WHERE value = $1 FOR UPDATE`
	c, err := scanCode(tx.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("access code not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("lock access code: %w", err)
	}

	if err := validate(c); err != nil {
		return nil, err
	}
	mutate(c)

	update := `
		UPDATE access_codes
		SET status = $2, used_at = $3, updated_at = $4
		WHERE value = $1
	`
	if _, err := tx.ExecContext(ctx, update, c.Value, string(c.Status), c.UsedAt, c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update access code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit code update: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListByCertifier(ctx context.Context, certifierID id.UserID, status models.CodeStatus) ([]*models.ClientAccessCode, error) {
	query := `
		SELECT ` + codeColumns + `
		FROM access_codes
		WHERE certifier_id = $1
		  AND ($2 = '' OR status = $2)
		ORDER BY issued_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(certifierID), string(status))
	if err != nil {
		return nil, fmt.Errorf("query access codes: %w", err)
	}
	defer rows.Close()

	var out []*models.ClientAccessCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access code: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access codes: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkExpired(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE access_codes
		SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND expires_at <= $1
	`
	result, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire access codes: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired codes rows affected: %w", err)
	}
	return int(rows), nil
}

type codeRow interface {
	Scan(dest ...any) error
}

func scanCode(row codeRow) (*models.ClientAccessCode, error) {
	var (
		c           models.ClientAccessCode
		codeID      uuid.UUID
		sessionID   uuid.UUID
		documentID  uuid.UUID
		clientID    uuid.UUID
		certifierID uuid.UUID
		status      string
		usedAt      sql.NullTime
	)
	err := row.Scan(
		&codeID, &c.Value, &sessionID, &documentID, &clientID, &certifierID,
		&status, &c.IssuedAt, &c.ExpiresAt, &usedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ID = id.CodeID(codeID)
	c.SessionID = id.SessionID(sessionID)
	c.DocumentID = id.DocumentID(documentID)
	c.ClientID = id.UserID(clientID)
	c.CertifierID = id.UserID(certifierID)
	c.Status = models.CodeStatus(status)
	if usedAt.Valid {
		c.UsedAt = &usedAt.Time
	}
	return &c, nil
}
