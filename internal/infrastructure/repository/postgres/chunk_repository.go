package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/pgvector/pgvector-go"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
)

// ChunkRepository stores chunk sets and serves both ranked retrievals from
// the same table: cosine distance over the pgvector column and ts_rank over
// the generated tsvector column.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) ContentHash(ctx context.Context, documentID string) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx,
		`SELECT content_hash FROM document_index_state WHERE document_id = $1`,
		documentID,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", domain.WrapError(domain.ErrStore, "load content hash", err)
	}
	return hash, nil
}

func (r *ChunkRepository) ChunkCount(ctx context.Context, documentID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT chunk_count FROM document_index_state WHERE document_id = $1`,
		documentID,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.WrapError(domain.ErrStore, "load chunk count", err)
	}
	return count, nil
}

// ReplaceChunks swaps the document's chunk set and index state in one
// transaction, so readers never see a half-indexed document.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID, contentHash string, chunks []domain.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.ErrStore, "replace chunks", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return domain.WrapError(domain.ErrStore, "replace chunks: delete old", err)
	}

	for _, chunk := range chunks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (id, document_id, chunk_index, content, section_title, token_count, start_offset, end_offset, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			chunk.ID,
			chunk.DocumentID,
			chunk.ChunkIndex,
			chunk.Content,
			chunk.SectionTitle,
			chunk.TokenCount,
			chunk.StartOffset,
			chunk.EndOffset,
			pgvector.NewVector(chunk.Embedding),
		)
		if err != nil {
			return domain.WrapError(domain.ErrStore, fmt.Sprintf("replace chunks: insert chunk %d", chunk.ChunkIndex), err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO document_index_state (document_id, content_hash, chunk_count, indexed_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (document_id) DO UPDATE
		 SET content_hash = EXCLUDED.content_hash,
		     chunk_count  = EXCLUDED.chunk_count,
		     indexed_at   = now()`,
		documentID, contentHash, len(chunks),
	)
	if err != nil {
		return domain.WrapError(domain.ErrStore, "replace chunks: update index state", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.ErrStore, "replace chunks: commit", err)
	}
	return nil
}

func (r *ChunkRepository) DeleteChunks(ctx context.Context, documentID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.ErrStore, "delete chunks", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return domain.WrapError(domain.ErrStore, "delete chunks", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_index_state WHERE document_id = $1`, documentID); err != nil {
		return domain.WrapError(domain.ErrStore, "delete chunks: index state", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.ErrStore, "delete chunks: commit", err)
	}
	return nil
}

func (r *ChunkRepository) SearchVector(ctx context.Context, vector []float32, limit int, documentID string) ([]domain.ChunkRef, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT id, document_id, chunk_index FROM chunks`
	args := []any{pgvector.NewVector(vector)}
	if documentID != "" {
		query += ` WHERE document_id = $2`
		args = append(args, documentID)
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStore, "vector search", err)
	}
	defer rows.Close()

	return scanChunkRefs(rows, "vector search")
}

func (r *ChunkRepository) SearchKeyword(ctx context.Context, query string, limit int, documentID string) ([]domain.ChunkRef, error) {
	if limit <= 0 {
		return nil, nil
	}
	tsQuery := buildTSQuery(query)
	if tsQuery == "" {
		return nil, nil
	}

	sqlQuery := `SELECT id, document_id, chunk_index FROM chunks
	 WHERE content_tsv @@ to_tsquery('english', $1)`
	args := []any{tsQuery}
	if documentID != "" {
		sqlQuery += ` AND document_id = $2`
		args = append(args, documentID)
	}
	sqlQuery += fmt.Sprintf(` ORDER BY ts_rank(content_tsv, to_tsquery('english', $1)) DESC LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStore, "keyword search", err)
	}
	defer rows.Close()

	return scanChunkRefs(rows, "keyword search")
}

// HydrateChunks loads content and document titles for the fused winners.
// Placeholders are built per id because the stdlib driver has no array type
// for text slices.
func (r *ChunkRepository) HydrateChunks(ctx context.Context, chunkIDs []string) (map[string]domain.ChunkDetail, error) {
	if len(chunkIDs) == 0 {
		return map[string]domain.ChunkDetail{}, nil
	}

	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(
		`SELECT c.id, c.content, c.section_title, COALESCE(d.title, '')
		 FROM chunks c
		 LEFT JOIN documents d ON d.id = c.document_id
		 WHERE c.id IN (%s)`,
		strings.Join(placeholders, ", "),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStore, "hydrate chunks", err)
	}
	defer rows.Close()

	details := make(map[string]domain.ChunkDetail, len(chunkIDs))
	for rows.Next() {
		var id string
		var detail domain.ChunkDetail
		if err := rows.Scan(&id, &detail.Content, &detail.SectionTitle, &detail.DocumentTitle); err != nil {
			return nil, domain.WrapError(domain.ErrStore, "hydrate chunks: scan", err)
		}
		details[id] = detail
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrStore, "hydrate chunks", err)
	}
	return details, nil
}

func scanChunkRefs(rows *sql.Rows, operation string) ([]domain.ChunkRef, error) {
	var refs []domain.ChunkRef
	for rows.Next() {
		var ref domain.ChunkRef
		if err := rows.Scan(&ref.ChunkID, &ref.DocumentID, &ref.ChunkIndex); err != nil {
			return nil, domain.WrapError(domain.ErrStore, operation+": scan", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrStore, operation, err)
	}
	return refs, nil
}

// buildTSQuery turns free text into an OR tsquery over sanitized terms, so a
// partial match still retrieves candidates.
func buildTSQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		term := sanitizeTerm(field)
		if term != "" {
			terms = append(terms, term)
		}
	}
	return strings.Join(terms, " | ")
}

func sanitizeTerm(field string) string {
	var b strings.Builder
	for _, r := range field {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
