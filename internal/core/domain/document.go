package domain

import "time"

// Document is owned by the surrounding application. The pipeline only reads
// it: chunks are derived from Title+Content, and the stored content hash
// decides whether re-indexing is needed at all.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type IndexReport struct {
	DocumentID    string `json:"document_id"`
	ChunksCreated int    `json:"chunks_created"`
	ChunksSkipped int    `json:"chunks_skipped"`
}

// ReindexReport summarizes a full-corpus run. Errors is keyed by document id;
// a failed document never aborts the batch.
type ReindexReport struct {
	Processed int               `json:"processed"`
	Succeeded int               `json:"succeeded"`
	Errors    map[string]string `json:"errors,omitempty"`
}
