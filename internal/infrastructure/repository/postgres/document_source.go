package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
)

// DocumentRepository reads the documents table owned by the surrounding
// application. The pipeline only consumes documents, it never writes them.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, content, summary, updated_at FROM documents WHERE id = $1`,
		id,
	).Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Summary, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrStore, "load document", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListAll(ctx context.Context) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, content, summary, updated_at FROM documents ORDER BY id`,
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStore, "list documents", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Summary, &doc.UpdatedAt); err != nil {
			return nil, domain.WrapError(domain.ErrStore, "list documents: scan", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrStore, "list documents", err)
	}
	return docs, nil
}
