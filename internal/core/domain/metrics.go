package domain

import "time"

const (
	FeedbackHelpful    = "helpful"
	FeedbackNotHelpful = "not_helpful"
)

// SearchMetric is recorded once per pipeline run and may receive exactly one
// later feedback update by QueryID.
type SearchMetric struct {
	QueryID           string    `json:"query_id"`
	Query             string    `json:"query"`
	CreatedAt         time.Time `json:"created_at"`
	VectorSearchMs    int64     `json:"vector_search_ms"`
	RerankMs          int64     `json:"rerank_ms"`
	GenerationMs      int64     `json:"generation_ms"`
	TotalMs           int64     `json:"total_ms"`
	ChunksRetrieved   int       `json:"chunks_retrieved"`
	ChunksAfterRerank int       `json:"chunks_after_rerank"`
	Confidence        float64   `json:"confidence"`
	Feedback          string    `json:"user_feedback,omitempty"`
}

type QueryFrequency struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

type SlowQuery struct {
	Query   string `json:"query"`
	TotalMs int64  `json:"total_ms"`
}

// MetricsSummary aggregates recorded metrics over a trailing window.
// HelpfulRate counts only rated queries in its denominator.
type MetricsSummary struct {
	TotalSearches     int              `json:"total_searches"`
	AvgVectorSearchMs float64          `json:"avg_vector_search_ms"`
	AvgRerankMs       float64          `json:"avg_rerank_ms"`
	AvgGenerationMs   float64          `json:"avg_generation_ms"`
	AvgTotalMs        float64          `json:"avg_total_ms"`
	AvgConfidence     float64          `json:"avg_confidence"`
	HelpfulRate       float64          `json:"helpful_rate"`
	TopQueries        []QueryFrequency `json:"top_queries"`
	SlowestQueries    []SlowQuery      `json:"slowest_queries"`
}
