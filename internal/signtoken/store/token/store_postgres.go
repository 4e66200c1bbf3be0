package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ronflow/internal/signtoken/models"
	id "ronflow/pkg/domain"
	"ronflow/pkg/platform/sentinel"
)

// PostgresStore persists signature tokens so they survive restarts.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, t *models.SignatureToken) error {
	query := `
		INSERT INTO signature_tokens (value, document_id, user_id, role, issued_by, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		t.Value,
		uuid.UUID(t.DocumentID),
		uuid.UUID(t.UserID),
		string(t.Role),
		uuid.UUID(t.IssuedBy),
		t.IssuedAt,
		t.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save signature token: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByValue(ctx context.Context, value string) (*models.SignatureToken, error) {
	query := `
		SELECT value, document_id, user_id, role, issued_by, issued_at, expires_at
		FROM signature_tokens
		WHERE value = $1
	`
	var (
		t        models.SignatureToken
		docID    uuid.UUID
		userID   uuid.UUID
		role     string
		issuedBy uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&t.Value, &docID, &userID, &role, &issuedBy, &t.IssuedAt, &t.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("signature token not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find signature token: %w", err)
	}
	t.DocumentID = id.DocumentID(docID)
	t.UserID = id.UserID(userID)
	t.Role = id.Role(role)
	t.IssuedBy = id.UserID(issuedBy)
	return &t, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM signature_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired tokens rows affected: %w", err)
	}
	return int(rows), nil
}
