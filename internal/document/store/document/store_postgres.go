package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ronflow/internal/document/models"
	id "ronflow/pkg/domain"
	"ronflow/pkg/platform/sentinel"
)

// PostgresStore persists documents in PostgreSQL. Execute uses
// SELECT ... FOR UPDATE so validate-then-mutate stays atomic under
// concurrent writers.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const documentColumns = `
	id, title, body, status, branch, template_id,
	client_id, certifier_id, description,
	created_at, updated_at, certified_at, certified_by
`

func (s *PostgresStore) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	var templateID, certifiedBy *uuid.UUID
	if !doc.TemplateID.IsZero() {
		tid := uuid.UUID(doc.TemplateID)
		templateID = &tid
	}
	if !doc.CertifiedBy.IsZero() {
		cby := uuid.UUID(doc.CertifiedBy)
		certifiedBy = &cby
	}

	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(doc.ID),
		doc.Title,
		doc.Body,
		string(doc.Status),
		string(doc.Branch),
		templateID,
		uuid.UUID(doc.ClientID),
		uuid.UUID(doc.CertifierID),
		doc.Description,
		doc.CreatedAt,
		doc.UpdatedAt,
		doc.CertifiedAt,
		certifiedBy,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("document already exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, uuid.UUID(docID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

// Execute atomically validates and mutates a document. The row lock taken by
// FOR UPDATE is held during both callbacks; a losing racer re-validates
// against the winner's committed state.
func (s *PostgresStore) Execute(ctx context.Context, docID id.DocumentID, validate func(*models.Document) error, mutate func(*models.Document)) (*models.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin document update: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 FOR UPDATE`
	doc, err := scanDocument(tx.QueryRowContext(ctx, query, uuid.UUID(docID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("lock document: %w", err)
	}

	if err := validate(doc); err != nil {
		return nil, err
	}
	mutate(doc)

	var certifiedBy *uuid.UUID
	if !doc.CertifiedBy.IsZero() {
		cby := uuid.UUID(doc.CertifiedBy)
		certifiedBy = &cby
	}
	update := `
		UPDATE documents
		SET title = $2, body = $3, status = $4, description = $5,
		    updated_at = $6, certified_at = $7, certified_by = $8
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		uuid.UUID(doc.ID),
		doc.Title,
		doc.Body,
		string(doc.Status),
		doc.Description,
		doc.UpdatedAt,
		doc.CertifiedAt,
		certifiedBy,
	); err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit document update: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) ListPendingCertification(ctx context.Context, certifierID id.UserID) ([]*models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE branch = 'upload'
		  AND certifier_id = $1
		  AND status IN ('uploaded', 'processing')
		ORDER BY created_at ASC
	`
	return s.queryDocuments(ctx, query, uuid.UUID(certifierID))
}

func (s *PostgresStore) ListByParticipant(ctx context.Context, userID id.UserID) ([]*models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE client_id = $1 OR certifier_id = $1
		ORDER BY created_at DESC
	`
	return s.queryDocuments(ctx, query, uuid.UUID(userID))
}

func (s *PostgresStore) queryDocuments(ctx context.Context, query string, args ...any) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

type documentRow interface {
	Scan(dest ...any) error
}

func scanDocument(row documentRow) (*models.Document, error) {
	var (
		doc         models.Document
		docID       uuid.UUID
		status      string
		branch      string
		templateID  *uuid.UUID
		clientID    uuid.UUID
		certifierID uuid.UUID
		certifiedAt sql.NullTime
		certifiedBy *uuid.UUID
	)
	err := row.Scan(
		&docID, &doc.Title, &doc.Body, &status, &branch, &templateID,
		&clientID, &certifierID, &doc.Description,
		&doc.CreatedAt, &doc.UpdatedAt, &certifiedAt, &certifiedBy,
	)
	if err != nil {
		return nil, err
	}
	doc.ID = id.DocumentID(docID)
	doc.Status = models.DocumentStatus(status)
	doc.Branch = models.DocumentBranch(branch)
	if templateID != nil {
		doc.TemplateID = id.TemplateID(*templateID)
	}
	doc.ClientID = id.UserID(clientID)
	doc.CertifierID = id.UserID(certifierID)
	if certifiedAt.Valid {
		doc.CertifiedAt = &certifiedAt.Time
	}
	if certifiedBy != nil {
		doc.CertifiedBy = id.UserID(*certifiedBy)
	}
	return &doc, nil
}
