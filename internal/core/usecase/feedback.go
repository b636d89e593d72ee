package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
	"github.com/avelichko/kb-pipeline/internal/core/ports"
)

// Feedback attaches a user rating to a previously recorded query.
type Feedback struct {
	metrics ports.MetricsStore
}

func NewFeedback(metrics ports.MetricsStore) *Feedback {
	return &Feedback{metrics: metrics}
}

func (f *Feedback) Submit(ctx context.Context, queryID, feedback string) error {
	if queryID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "submit feedback", errors.New("query id is empty"))
	}
	if feedback != domain.FeedbackHelpful && feedback != domain.FeedbackNotHelpful {
		return domain.WrapError(domain.ErrInvalidInput, "submit feedback",
			fmt.Errorf("feedback must be %q or %q", domain.FeedbackHelpful, domain.FeedbackNotHelpful))
	}
	return f.metrics.RecordFeedback(ctx, queryID, feedback)
}
