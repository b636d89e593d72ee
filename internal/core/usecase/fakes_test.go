package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
	// gate, when set, blocks Embed until the channel closes.
	gate <-chan struct{}
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-time.After(2 * time.Second):
			return nil, errors.New("embedding gate never opened")
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		f.calls++
		vectors[i] = f.vector
	}
	return vectors, nil
}

type fakeChunkStore struct {
	hash        string
	count       int
	vectorRefs  []domain.ChunkRef
	keywordRefs []domain.ChunkRef
	details     map[string]domain.ChunkDetail

	vectorErr  error
	keywordErr error
	replaceErr error

	// keywordStarted, when set, is closed as SearchKeyword begins.
	keywordStarted chan struct{}

	replaced     []domain.Chunk
	replacedHash string
	deletedID    string
}

func (f *fakeChunkStore) ContentHash(context.Context, string) (string, error) {
	return f.hash, nil
}

func (f *fakeChunkStore) ChunkCount(context.Context, string) (int, error) {
	return f.count, nil
}

func (f *fakeChunkStore) ReplaceChunks(_ context.Context, _, contentHash string, chunks []domain.Chunk) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced = chunks
	f.replacedHash = contentHash
	return nil
}

func (f *fakeChunkStore) DeleteChunks(_ context.Context, documentID string) error {
	f.deletedID = documentID
	return nil
}

func (f *fakeChunkStore) SearchVector(context.Context, []float32, int, string) ([]domain.ChunkRef, error) {
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return f.vectorRefs, nil
}

func (f *fakeChunkStore) SearchKeyword(context.Context, string, int, string) ([]domain.ChunkRef, error) {
	if f.keywordStarted != nil {
		close(f.keywordStarted)
	}
	if f.keywordErr != nil {
		return nil, f.keywordErr
	}
	return f.keywordRefs, nil
}

func (f *fakeChunkStore) HydrateChunks(_ context.Context, ids []string) (map[string]domain.ChunkDetail, error) {
	out := make(map[string]domain.ChunkDetail, len(ids))
	for _, id := range ids {
		if detail, ok := f.details[id]; ok {
			out[id] = detail
		}
	}
	return out, nil
}

type fakeDocs struct {
	docs    map[string]*domain.Document
	listErr error
}

func (f *fakeDocs) GetByID(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (f *fakeDocs) ListAll(context.Context) ([]domain.Document, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Document, 0, len(f.docs))
	for _, doc := range f.docs {
		out = append(out, *doc)
	}
	return out, nil
}

type fakeChunker struct {
	chunks     []domain.Chunk
	invalidIdx map[int]bool
}

func (f *fakeChunker) Chunk(string, string) []domain.Chunk {
	return f.chunks
}

func (f *fakeChunker) Validate(chunk domain.Chunk) error {
	if f.invalidIdx[chunk.ChunkIndex] {
		return domain.ErrInvalidInput
	}
	return nil
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]*domain.QueryResult
	invalidated int
	getErr      error
	setCh       chan string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries: map[string]*domain.QueryResult{},
		setCh:   make(chan string, 8),
	}
}

func (f *fakeCache) Get(_ context.Context, query string) (*domain.QueryResult, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.entries[query]
	if !ok {
		return nil, false, nil
	}
	copied := *result
	return &copied, true, nil
}

func (f *fakeCache) Set(_ context.Context, query string, result *domain.QueryResult, _ time.Duration) error {
	f.mu.Lock()
	f.entries[query] = result
	f.mu.Unlock()
	f.setCh <- query
	return nil
}

func (f *fakeCache) InvalidateAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
	f.entries = map[string]*domain.QueryResult{}
	return nil
}

func (f *fakeCache) CleanupExpired(context.Context) (int64, error) { return 0, nil }

func (f *fakeCache) Stats(context.Context) (domain.CacheStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.CacheStats{Entries: len(f.entries)}, nil
}

func (f *fakeCache) TopQueries(context.Context, int) ([]domain.CachedQuery, error) {
	return nil, nil
}

func (f *fakeCache) invalidations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidated
}

type fakeMetrics struct {
	mu          sync.Mutex
	recorded    []domain.SearchMetric
	feedback    map[string]string
	feedbackErr error
	recordCh    chan string
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		feedback: map[string]string{},
		recordCh: make(chan string, 8),
	}
}

func (f *fakeMetrics) Record(_ context.Context, metric domain.SearchMetric) error {
	f.mu.Lock()
	f.recorded = append(f.recorded, metric)
	f.mu.Unlock()
	f.recordCh <- metric.QueryID
	return nil
}

func (f *fakeMetrics) RecordFeedback(_ context.Context, queryID, feedback string) error {
	if f.feedbackErr != nil {
		return f.feedbackErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback[queryID] = feedback
	return nil
}

func (f *fakeMetrics) Summary(context.Context, int) (*domain.MetricsSummary, error) {
	return &domain.MetricsSummary{}, nil
}

func (f *fakeMetrics) Cleanup(context.Context, int) (int64, error) { return 0, nil }

func (f *fakeMetrics) lastRecorded() (domain.SearchMetric, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recorded) == 0 {
		return domain.SearchMetric{}, false
	}
	return f.recorded[len(f.recorded)-1], true
}

type fakeGenerator struct {
	structured func(prompt string, out any) error
	text       string
	err        error
}

func (f *fakeGenerator) Generate(context.Context, string) (string, error) {
	return f.text, f.err
}

func (f *fakeGenerator) GenerateStructured(_ context.Context, prompt string, out any) error {
	if f.structured != nil {
		return f.structured(prompt, out)
	}
	return f.err
}

type fakeReranker struct {
	results []domain.RerankResult
	err     error
}

func (f *fakeReranker) Rerank(context.Context, string, []domain.HybridChunkResult, int) ([]domain.RerankResult, error) {
	return f.results, f.err
}

func waitFor[T any](t interface{ Fatalf(string, ...any) }, ch <-chan T, what string) T {
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}
