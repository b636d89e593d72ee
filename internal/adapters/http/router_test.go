package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
)

type stubQuery struct {
	lastQuestion string
	lastOptions  domain.QueryOptions
	result       *domain.QueryResult
}

func (s *stubQuery) Answer(_ context.Context, question string, opts domain.QueryOptions) *domain.QueryResult {
	s.lastQuestion = question
	s.lastOptions = opts
	return s.result
}

type stubFeedback struct {
	err error
}

func (s *stubFeedback) Submit(context.Context, string, string) error { return s.err }

type stubIndex struct {
	report *domain.ReindexReport
	err    error
}

func (s *stubIndex) IndexByID(context.Context, string) (*domain.IndexReport, error) {
	return nil, nil
}
func (s *stubIndex) IndexDocument(context.Context, *domain.Document) (*domain.IndexReport, error) {
	return nil, nil
}
func (s *stubIndex) RemoveDocument(context.Context, string) error { return nil }
func (s *stubIndex) ReindexAll(context.Context) (*domain.ReindexReport, error) {
	return s.report, s.err
}

type stubCache struct {
	stats   domain.CacheStats
	top     []domain.CachedQuery
	removed int64
}

func (s *stubCache) Get(context.Context, string) (*domain.QueryResult, bool, error) {
	return nil, false, nil
}
func (s *stubCache) Set(context.Context, string, *domain.QueryResult, time.Duration) error {
	return nil
}
func (s *stubCache) InvalidateAll(context.Context) error { return nil }
func (s *stubCache) CleanupExpired(context.Context) (int64, error) {
	return s.removed, nil
}
func (s *stubCache) Stats(context.Context) (domain.CacheStats, error) { return s.stats, nil }
func (s *stubCache) TopQueries(context.Context, int) ([]domain.CachedQuery, error) {
	return s.top, nil
}

type stubMetrics struct {
	summary *domain.MetricsSummary
	days    int
}

func (s *stubMetrics) Record(context.Context, domain.SearchMetric) error { return nil }

func (s *stubMetrics) RecordFeedback(context.Context, string, string) error { return nil }
func (s *stubMetrics) Summary(_ context.Context, days int) (*domain.MetricsSummary, error) {
	s.days = days
	return s.summary, nil
}
func (s *stubMetrics) Cleanup(context.Context, int) (int64, error) { return 0, nil }

type stubFeed struct {
	published []string
	err       error
}

func (s *stubFeed) PublishDocumentChanged(_ context.Context, documentID string) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, documentID)
	return nil
}

func (s *stubFeed) SubscribeDocumentChanged(context.Context, func(context.Context, string) error) error {
	return nil
}

func testRouter(query *stubQuery, feedback *stubFeedback, index *stubIndex, cache *stubCache, metrics *stubMetrics) http.Handler {
	if query == nil {
		query = &stubQuery{result: &domain.QueryResult{Answer: "stub"}}
	}
	if feedback == nil {
		feedback = &stubFeedback{}
	}
	if index == nil {
		index = &stubIndex{report: &domain.ReindexReport{}}
	}
	if cache == nil {
		cache = &stubCache{}
	}
	if metrics == nil {
		metrics = &stubMetrics{summary: &domain.MetricsSummary{}}
	}
	return NewRouter(query, feedback, index, cache, metrics, &stubFeed{}).Handler()
}

func TestDocumentReindexPublishesEvent(t *testing.T) {
	feed := &stubFeed{}
	handler := NewRouter(
		&stubQuery{result: &domain.QueryResult{}},
		&stubFeedback{},
		&stubIndex{},
		&stubCache{},
		&stubMetrics{summary: &domain.MetricsSummary{}},
		feed,
	).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/doc-7/reindex", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(feed.published) != 1 || feed.published[0] != "doc-7" {
		t.Fatalf("expected doc-7 published, got %v", feed.published)
	}
}

func TestQueryEndpoint(t *testing.T) {
	query := &stubQuery{result: &domain.QueryResult{QueryID: "q1", Answer: "use systemctl", Confidence: 0.9}}
	handler := testRouter(query, nil, nil, nil, nil)

	body := `{"question":"how do i restart?","options":{"preset":"quick"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if query.lastQuestion != "how do i restart?" || query.lastOptions.Preset != "quick" {
		t.Fatalf("request not forwarded: %q %+v", query.lastQuestion, query.lastOptions)
	}

	var result domain.QueryResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Answer != "use systemctl" {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestQueryEndpointRejectsEmptyQuestion(t *testing.T) {
	handler := testRouter(nil, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"question":""}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFeedbackEndpointMapsErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusNoContent},
		{domain.ErrMetricNotFound, http.StatusNotFound},
		{domain.WrapError(domain.ErrInvalidInput, "submit feedback", domain.ErrInvalidInput), http.StatusBadRequest},
	}
	for _, tc := range cases {
		handler := testRouter(nil, &stubFeedback{err: tc.err}, nil, nil, nil)
		body := `{"query_id":"q1","feedback":"helpful"}`
		req := httptest.NewRequest(http.MethodPost, "/v1/feedback", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != tc.want {
			t.Fatalf("error %v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
	}
}

func TestReindexEndpoint(t *testing.T) {
	index := &stubIndex{report: &domain.ReindexReport{Processed: 3, Succeeded: 2, Errors: map[string]string{"bad": "boom"}}}
	handler := testRouter(nil, nil, index, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/reindex", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var report domain.ReindexReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Processed != 3 || report.Errors["bad"] != "boom" {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestCacheEndpoints(t *testing.T) {
	cache := &stubCache{
		stats:   domain.CacheStats{Entries: 5, TotalHits: 12},
		top:     []domain.CachedQuery{{Query: "popular", HitCount: 8}},
		removed: 2,
	}
	handler := testRouter(nil, nil, nil, cache, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", rec.Code)
	}
	var payload struct {
		Stats      domain.CacheStats    `json:"stats"`
		TopQueries []domain.CachedQuery `json:"top_queries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if payload.Stats.Entries != 5 || len(payload.TopQueries) != 1 {
		t.Fatalf("unexpected stats payload: %+v", payload)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/cache/cleanup", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cleanup: expected 200, got %d", rec.Code)
	}
	var cleanup map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &cleanup); err != nil {
		t.Fatalf("decode cleanup: %v", err)
	}
	if cleanup["removed"] != 2 {
		t.Fatalf("expected 2 removed, got %v", cleanup)
	}
}

func TestMetricsSummaryEndpoint(t *testing.T) {
	metrics := &stubMetrics{summary: &domain.MetricsSummary{TotalSearches: 9}}
	handler := testRouter(nil, nil, nil, nil, metrics)

	req := httptest.NewRequest(http.MethodGet, "/v1/metrics/summary?days=30", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if metrics.days != 30 {
		t.Fatalf("expected days=30 forwarded, got %d", metrics.days)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/metrics/summary?days=zero", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed days, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := testRouter(nil, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
