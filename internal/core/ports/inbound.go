package ports

import (
	"context"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
)

// QueryService is the inbound contract for the answer pipeline. It always
// returns a result; critical-path failures are converted into a safe
// fallback response rather than surfaced.
type QueryService interface {
	Answer(ctx context.Context, question string, opts domain.QueryOptions) *domain.QueryResult
}

// FeedbackService records explicit user feedback on a past query.
type FeedbackService interface {
	Submit(ctx context.Context, queryID, feedback string) error
}

// IndexService is the inbound contract for chunk indexing.
type IndexService interface {
	IndexByID(ctx context.Context, documentID string) (*domain.IndexReport, error)
	IndexDocument(ctx context.Context, doc *domain.Document) (*domain.IndexReport, error)
	RemoveDocument(ctx context.Context, documentID string) error
	ReindexAll(ctx context.Context) (*domain.ReindexReport, error)
}
