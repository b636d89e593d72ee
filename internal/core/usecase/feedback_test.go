package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
)

func TestSubmitFeedbackValidatesValue(t *testing.T) {
	feedback := NewFeedback(newFakeMetrics())

	if err := feedback.Submit(context.Background(), "q1", "amazing"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown value, got %v", err)
	}
	if err := feedback.Submit(context.Background(), "", domain.FeedbackHelpful); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty query id, got %v", err)
	}
}

func TestSubmitFeedbackRecords(t *testing.T) {
	metrics := newFakeMetrics()
	feedback := NewFeedback(metrics)

	if err := feedback.Submit(context.Background(), "q1", domain.FeedbackNotHelpful); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.feedback["q1"] != domain.FeedbackNotHelpful {
		t.Fatalf("feedback not recorded: %+v", metrics.feedback)
	}
}

func TestSubmitFeedbackPropagatesNotFound(t *testing.T) {
	metrics := newFakeMetrics()
	metrics.feedbackErr = domain.ErrMetricNotFound
	feedback := NewFeedback(metrics)

	if err := feedback.Submit(context.Background(), "missing", domain.FeedbackHelpful); !errors.Is(err, domain.ErrMetricNotFound) {
		t.Fatalf("expected ErrMetricNotFound, got %v", err)
	}
}
