package domain

// Chunk is the unit of retrieval: a token-bounded, section-scoped slice of a
// source document. Offsets address the source text; [StartOffset, EndOffset)
// ranges of one document are contiguous and gap-free in chunk-index order.
// Content may additionally carry a sentence-overlap prefix from the previous
// chunk for retrieval continuity.
type Chunk struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id"`
	ChunkIndex   int       `json:"chunk_index"`
	Content      string    `json:"content"`
	SectionTitle string    `json:"section_title,omitempty"`
	TokenCount   int       `json:"token_count"`
	StartOffset  int       `json:"start_offset"`
	EndOffset    int       `json:"end_offset"`
	Embedding    []float32 `json:"-"`
}
