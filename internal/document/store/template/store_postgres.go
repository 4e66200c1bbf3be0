package template

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ronflow/internal/document/models"
	id "ronflow/pkg/domain"
	"ronflow/pkg/platform/sentinel"
)

// PostgresStore persists templates in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, t *models.Template) error {
	query := `
		INSERT INTO templates (id, name, body, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			body = EXCLUDED.body
	`
	_, err := s.db.ExecContext(ctx, query, uuid.UUID(t.ID), t.Name, t.Body, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, templateID id.TemplateID) (*models.Template, error) {
	query := `SELECT id, name, body, created_at FROM templates WHERE id = $1`
	var (
		t   models.Template
		tid uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(templateID)).Scan(&tid, &t.Name, &t.Body, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("template not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find template: %w", err)
	}
	t.ID = id.TemplateID(tid)
	return &t, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, body, created_at FROM templates ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []*models.Template
	for rows.Next() {
		var (
			t   models.Template
			tid uuid.UUID
		)
		if err := rows.Scan(&tid, &t.Name, &t.Body, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		t.ID = id.TemplateID(tid)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}
