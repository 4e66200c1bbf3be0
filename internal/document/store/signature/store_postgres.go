package signature

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"ronflow/internal/document/models"
	id "ronflow/pkg/domain"
)

// PostgresStore persists signatures in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Record supersedes the previous effective signature for (document, role)
// and inserts the new capture in one transaction.
func (s *PostgresStore) Record(ctx context.Context, sig *models.Signature) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record signature: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	supersede := `
		UPDATE signatures
		SET superseded = TRUE
		WHERE document_id = $1 AND role = $2 AND superseded = FALSE
	`
	if _, err := tx.ExecContext(ctx, supersede, uuid.UUID(sig.DocumentID), string(sig.Role)); err != nil {
		return fmt.Errorf("supersede signature: %w", err)
	}

	insert := `
		INSERT INTO signatures (
			id, document_id, user_id, role, image_data,
			client_context, origin_ip, captured_at, superseded
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
	`
	if _, err := tx.ExecContext(ctx, insert,
		uuid.UUID(sig.ID),
		uuid.UUID(sig.DocumentID),
		uuid.UUID(sig.UserID),
		string(sig.Role),
		sig.ImageData,
		sig.ClientContext,
		sig.OriginIP,
		sig.CapturedAt,
	); err != nil {
		return fmt.Errorf("insert signature: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record signature: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEffective(ctx context.Context, docID id.DocumentID) ([]*models.Signature, error) {
	return s.querySignatures(ctx, `
		SELECT id, document_id, user_id, role, image_data,
		       client_context, origin_ip, captured_at, superseded
		FROM signatures
		WHERE document_id = $1 AND superseded = FALSE
		ORDER BY captured_at ASC
	`, uuid.UUID(docID))
}

func (s *PostgresStore) ListByDocument(ctx context.Context, docID id.DocumentID) ([]*models.Signature, error) {
	return s.querySignatures(ctx, `
		SELECT id, document_id, user_id, role, image_data,
		       client_context, origin_ip, captured_at, superseded
		FROM signatures
		WHERE document_id = $1
		ORDER BY captured_at ASC
	`, uuid.UUID(docID))
}

func (s *PostgresStore) querySignatures(ctx context.Context, query string, args ...any) ([]*models.Signature, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query signatures: %w", err)
	}
	defer rows.Close()

	var out []*models.Signature
	for rows.Next() {
		var (
			sig    models.Signature
			sigID  uuid.UUID
			docID  uuid.UUID
			userID uuid.UUID
			role   string
		)
		if err := rows.Scan(
			&sigID, &docID, &userID, &role, &sig.ImageData,
			&sig.ClientContext, &sig.OriginIP, &sig.CapturedAt, &sig.Superseded,
		); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		sig.ID = id.SignatureID(sigID)
		sig.DocumentID = id.DocumentID(docID)
		sig.UserID = id.UserID(userID)
		sig.Role = id.Role(role)
		out = append(out, &sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return out, nil
}
