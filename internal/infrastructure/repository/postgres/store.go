package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// schemaLockID serializes concurrent EnsureSchema runs across replicas.
const schemaLockID = int64(720_416_093)

func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the pipeline tables and indexes if missing. It takes
// an advisory lock so multiple instances starting together do not race on
// DDL. embeddingDim must match the embedding collaborator's output width.
func EnsureSchema(ctx context.Context, db *sql.DB, embeddingDim int) error {
	if embeddingDim <= 0 {
		return fmt.Errorf("ensure schema: embedding dimension must be positive, got %d", embeddingDim)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("ensure schema: acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", schemaLockID); err != nil {
		return fmt.Errorf("ensure schema: advisory lock: %w", err)
	}
	defer conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", schemaLockID)

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			content    TEXT NOT NULL,
			summary    TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS document_index_state (
			document_id  TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			chunk_count  INTEGER NOT NULL DEFAULT 0,
			indexed_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id            TEXT PRIMARY KEY,
			document_id   TEXT NOT NULL,
			chunk_index   INTEGER NOT NULL,
			content       TEXT NOT NULL,
			section_title TEXT NOT NULL DEFAULT '',
			token_count   INTEGER NOT NULL,
			start_offset  INTEGER NOT NULL,
			end_offset    INTEGER NOT NULL,
			embedding     vector(%d) NOT NULL,
			content_tsv   tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED
		)`, embeddingDim),
		`CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks (document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_content_tsv ON chunks USING gin (content_tsv)`,
		`CREATE TABLE IF NOT EXISTS answer_cache (
			query_hash       TEXT PRIMARY KEY,
			query            TEXT NOT NULL,
			result           JSONB NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at       TIMESTAMPTZ NOT NULL,
			hit_count        BIGINT NOT NULL DEFAULT 0,
			last_accessed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS search_metrics (
			query_id            TEXT PRIMARY KEY,
			query               TEXT NOT NULL,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			vector_search_ms    BIGINT NOT NULL DEFAULT 0,
			rerank_ms           BIGINT NOT NULL DEFAULT 0,
			generation_ms       BIGINT NOT NULL DEFAULT 0,
			total_ms            BIGINT NOT NULL DEFAULT 0,
			chunks_retrieved    INTEGER NOT NULL DEFAULT 0,
			chunks_after_rerank INTEGER NOT NULL DEFAULT 0,
			confidence          DOUBLE PRECISION NOT NULL DEFAULT 0,
			feedback            TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_search_metrics_created_at ON search_metrics (created_at)`,
	}

	for _, statement := range statements {
		if _, err := conn.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
