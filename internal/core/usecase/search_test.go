package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
)

func refsOf(ids ...string) []domain.ChunkRef {
	refs := make([]domain.ChunkRef, len(ids))
	for i, id := range ids {
		refs[i] = domain.ChunkRef{ChunkID: id, DocumentID: "doc-" + id, ChunkIndex: i}
	}
	return refs
}

func TestFuseVectorOnlyCandidateScore(t *testing.T) {
	fused := fuseRankedLists(refsOf("a"), nil)
	if len(fused) != 1 {
		t.Fatalf("expected 1 result, got %d", len(fused))
	}
	want := vectorWeight * (1.0 / float64(rrfK+1))
	if math.Abs(fused[0].CombinedScore-want) > 1e-12 {
		t.Fatalf("expected combined score %v, got %v", want, fused[0].CombinedScore)
	}
	if fused[0].KeywordScore != 0 {
		t.Fatalf("expected zero keyword score, got %v", fused[0].KeywordScore)
	}
}

func TestFuseChunkInBothListsOutranksSingleList(t *testing.T) {
	vector := refsOf("both", "vec-only")
	keyword := []domain.ChunkRef{{ChunkID: "both", DocumentID: "doc-both", ChunkIndex: 0}}

	fused := fuseRankedLists(vector, keyword)
	if fused[0].ChunkID != "both" {
		t.Fatalf("expected chunk present in both lists first, got %q", fused[0].ChunkID)
	}
	want := vectorWeight*(1.0/float64(rrfK+1)) + keywordWeight*(1.0/float64(rrfK+1))
	if math.Abs(fused[0].CombinedScore-want) > 1e-12 {
		t.Fatalf("expected combined score %v, got %v", want, fused[0].CombinedScore)
	}
}

func TestFuseVectorWeightDominatesAtEqualRank(t *testing.T) {
	vector := []domain.ChunkRef{{ChunkID: "z", DocumentID: "doc-b", ChunkIndex: 3}}
	keyword := []domain.ChunkRef{{ChunkID: "y", DocumentID: "doc-b", ChunkIndex: 1}}

	fused := fuseRankedLists(vector, keyword)
	if len(fused) != 2 {
		t.Fatalf("expected 2 results, got %d", len(fused))
	}
	if fused[0].ChunkID != "z" {
		t.Fatalf("expected vector-weighted chunk first, got %q", fused[0].ChunkID)
	}
}

func TestFuseOrderIsDeterministic(t *testing.T) {
	vector := refsOf("a", "b", "c", "d", "e")
	keyword := refsOf("e", "d", "c", "b", "a")

	first := fuseRankedLists(vector, keyword)
	for run := 0; run < 20; run++ {
		again := fuseRankedLists(vector, keyword)
		for i := range first {
			if again[i].ChunkID != first[i].ChunkID {
				t.Fatalf("run %d: position %d changed from %q to %q", run, i, first[i].ChunkID, again[i].ChunkID)
			}
		}
	}
}

func TestSearchHydratesFusedWinners(t *testing.T) {
	store := &fakeChunkStore{
		vectorRefs:  refsOf("a", "b"),
		keywordRefs: refsOf("a"),
		details: map[string]domain.ChunkDetail{
			"a": {Content: "alpha content", SectionTitle: "Alpha", DocumentTitle: "Doc A"},
			"b": {Content: "beta content", DocumentTitle: "Doc B"},
		},
	}
	searcher := NewHybridSearcher(&fakeEmbedder{vector: []float32{0.1}}, store)

	results, err := searcher.Search(context.Background(), "alpha", 10, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkID != "a" || results[0].Content != "alpha content" || results[0].DocumentTitle != "Doc A" {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
}

func TestSearchDegradesToKeywordOnlyWhenEmbeddingFails(t *testing.T) {
	store := &fakeChunkStore{
		keywordRefs: refsOf("k"),
		details: map[string]domain.ChunkDetail{
			"k": {Content: "keyword hit"},
		},
	}
	searcher := NewHybridSearcher(&fakeEmbedder{err: errors.New("embed down")}, store)

	results, err := searcher.Search(context.Background(), "query", 5, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "k" {
		t.Fatalf("expected keyword-only result, got %+v", results)
	}
	if results[0].VectorScore != 0 {
		t.Fatalf("expected zero vector score, got %v", results[0].VectorScore)
	}
}

func TestSearchKeywordLegRunsDuringEmbedding(t *testing.T) {
	keywordStarted := make(chan struct{})
	store := &fakeChunkStore{
		vectorRefs:     refsOf("v"),
		keywordRefs:    refsOf("k"),
		details:        map[string]domain.ChunkDetail{},
		keywordStarted: keywordStarted,
	}
	// The embedder refuses to return until the keyword leg has begun, so a
	// vector contribution in the result proves the legs overlap instead of
	// the keyword leg waiting behind the embedding call.
	searcher := NewHybridSearcher(&fakeEmbedder{vector: []float32{0.1}, gate: keywordStarted}, store)

	results, err := searcher.Search(context.Background(), "query", 5, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both legs to contribute, got %d results", len(results))
	}
	for _, result := range results {
		if result.ChunkID == "v" && result.VectorScore > 0 {
			return
		}
	}
	t.Fatalf("vector leg contributed nothing: %+v", results)
}

func TestSearchFailsWhenBothLegsFail(t *testing.T) {
	store := &fakeChunkStore{
		vectorErr:  errors.New("vector down"),
		keywordErr: errors.New("keyword down"),
	}
	searcher := NewHybridSearcher(&fakeEmbedder{vector: []float32{0.1}}, store)

	if _, err := searcher.Search(context.Background(), "query", 5, ""); err == nil {
		t.Fatalf("expected error when both retrieval legs fail")
	}
}

func TestSearchTruncatesToLimit(t *testing.T) {
	store := &fakeChunkStore{
		vectorRefs: refsOf("a", "b", "c", "d"),
		details:    map[string]domain.ChunkDetail{},
	}
	searcher := NewHybridSearcher(&fakeEmbedder{vector: []float32{0.1}}, store)

	results, err := searcher.Search(context.Background(), "query", 2, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}
