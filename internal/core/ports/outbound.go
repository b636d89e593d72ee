package ports

import (
	"context"
	"time"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
)

// Embedder builds vectors for chunk and query text. EmbedBatch is sequential
// under the collaborator's rate limit, not a true batch API.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// AnswerGenerator creates free text or schema-bound output. GenerateStructured
// strips any code-fence wrapping before decoding and reports malformed JSON
// as a typed error, never a silent default.
type AnswerGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStructured(ctx context.Context, prompt string, out any) error
}

// Chunker splits a document into indexable chunks and validates them.
type Chunker interface {
	Chunk(content, title string) []domain.Chunk
	Validate(chunk domain.Chunk) error
}

// ChunkStore persists chunk sets and serves the two ranked retrievals.
// ReplaceChunks swaps a document's chunk set atomically and records the new
// content hash.
type ChunkStore interface {
	ContentHash(ctx context.Context, documentID string) (string, error)
	ChunkCount(ctx context.Context, documentID string) (int, error)
	ReplaceChunks(ctx context.Context, documentID, contentHash string, chunks []domain.Chunk) error
	DeleteChunks(ctx context.Context, documentID string) error
	SearchVector(ctx context.Context, vector []float32, limit int, documentID string) ([]domain.ChunkRef, error)
	SearchKeyword(ctx context.Context, query string, limit int, documentID string) ([]domain.ChunkRef, error)
	HydrateChunks(ctx context.Context, chunkIDs []string) (map[string]domain.ChunkDetail, error)
}

// DocumentSource reads documents owned by the surrounding application.
type DocumentSource interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListAll(ctx context.Context) ([]domain.Document, error)
}

// AnswerCache stores complete pipeline results keyed by normalized query hash.
type AnswerCache interface {
	Get(ctx context.Context, query string) (*domain.QueryResult, bool, error)
	Set(ctx context.Context, query string, result *domain.QueryResult, ttl time.Duration) error
	InvalidateAll(ctx context.Context) error
	CleanupExpired(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (domain.CacheStats, error)
	TopQueries(ctx context.Context, n int) ([]domain.CachedQuery, error)
}

// MetricsStore persists per-query search metrics.
type MetricsStore interface {
	Record(ctx context.Context, metric domain.SearchMetric) error
	RecordFeedback(ctx context.Context, queryID, feedback string) error
	Summary(ctx context.Context, days int) (*domain.MetricsSummary, error)
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// Reranker reorders fused candidates. Implementations never fail the query:
// the LLM-scored strategy degrades to a deterministic fallback instead.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.HybridChunkResult, topK int) ([]domain.RerankResult, error)
}

// ChangeFeed propagates document-changed events to the index worker.
type ChangeFeed interface {
	PublishDocumentChanged(ctx context.Context, documentID string) error
	SubscribeDocumentChanged(ctx context.Context, handler func(context.Context, string) error) error
}

// PipelineObserver receives stage-level instrumentation. Implementations must
// be cheap and non-blocking.
type PipelineObserver interface {
	ObserveStage(stage string, duration time.Duration)
	ObserveCacheLookup(hit bool)
	ObserveQuery(status string, sourceCount int, duration time.Duration)
}
