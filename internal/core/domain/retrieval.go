package domain

// ChunkRef is one entry of a ranked retrieval list. Rank is positional
// (1-based by slice order); the store returns refs cheapest-first and the
// fused winners are hydrated afterwards.
type ChunkRef struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
}

// ChunkDetail hydrates a fused candidate with content and document title.
type ChunkDetail struct {
	Content       string
	SectionTitle  string
	DocumentTitle string
}

// HybridChunkResult is transient per-query state, never persisted.
// VectorScore and KeywordScore are raw reciprocal-rank terms; CombinedScore
// is their weighted sum.
type HybridChunkResult struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	Content       string  `json:"content"`
	SectionTitle  string  `json:"section_title,omitempty"`
	VectorScore   float64 `json:"vector_score"`
	KeywordScore  float64 `json:"keyword_score"`
	CombinedScore float64 `json:"combined_score"`
}

type RerankResult struct {
	ChunkID        string  `json:"chunk_id"`
	RelevanceScore float64 `json:"relevance_score"`
	Reasoning      string  `json:"reasoning"`
}

type Source struct {
	DocumentID    string `json:"document_id"`
	DocumentTitle string `json:"document_title"`
	Snippet       string `json:"snippet"`
}

type QueryMetrics struct {
	VectorSearchMs    int64 `json:"vector_search_ms"`
	RerankMs          int64 `json:"rerank_ms"`
	GenerationMs      int64 `json:"generation_ms"`
	TotalMs           int64 `json:"total_ms"`
	ChunksRetrieved   int   `json:"chunks_retrieved"`
	ChunksAfterRerank int   `json:"chunks_after_rerank"`
}

// QueryResult is the full pipeline response. The pipeline contract is that a
// result is always returned, never an error.
type QueryResult struct {
	QueryID           string              `json:"query_id"`
	Answer            string              `json:"answer"`
	Sources           []Source            `json:"sources"`
	Confidence        float64             `json:"confidence"`
	FollowUpQuestions []string            `json:"follow_up_questions"`
	Chunks            []HybridChunkResult `json:"chunks,omitempty"`
	Metrics           QueryMetrics        `json:"metrics"`
	CacheHit          bool                `json:"cache_hit"`
	Fallback          bool                `json:"fallback,omitempty"`
}

// QueryOptions selects a named preset and optionally overrides its fields.
// Nil pointers leave the preset value in place.
type QueryOptions struct {
	Preset         string  `json:"preset,omitempty"`
	SearchLimit    *int    `json:"search_limit,omitempty"`
	RerankTopK     *int    `json:"rerank_top_k,omitempty"`
	RerankEnabled  *bool   `json:"rerank_enabled,omitempty"`
	RerankStrategy *string `json:"rerank_strategy,omitempty"`
	CacheEnabled   *bool   `json:"cache_enabled,omitempty"`
	MetricsEnabled *bool   `json:"metrics_enabled,omitempty"`
}
