package usecase

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
	"github.com/avelichko/kb-pipeline/internal/core/ports"
)

const (
	// rrfK dampens the weight gap between neighboring ranks in the
	// reciprocal-rank fusion.
	rrfK = 60

	vectorWeight  = 0.7
	keywordWeight = 0.3

	// candidateFactor over-fetches each retrieval list so fusion has
	// material beyond the final cut.
	candidateFactor = 3

	defaultSearchLimit = 15
)

// HybridSearcher runs vector and keyword retrieval concurrently and fuses
// the two ranked lists with weighted reciprocal-rank fusion.
type HybridSearcher struct {
	embedder ports.Embedder
	store    ports.ChunkStore
}

func NewHybridSearcher(embedder ports.Embedder, store ports.ChunkStore) *HybridSearcher {
	return &HybridSearcher{embedder: embedder, store: store}
}

// Search returns at most limit fused candidates, hydrated with content and
// document titles. One failed retrieval leg degrades to the other; only both
// legs failing is an error.
func (s *HybridSearcher) Search(ctx context.Context, query string, limit int, documentID string) ([]domain.HybridChunkResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	fetch := candidateFactor * limit

	var (
		wg                              sync.WaitGroup
		vectorRefs, keywordRefs         []domain.ChunkRef
		embedErr, vectorErr, keywordErr error
	)

	// The embedding call belongs to the vector leg so the keyword leg is not
	// held up behind it; total latency stays the slower of the two legs.
	wg.Add(2)
	go func() {
		defer wg.Done()
		var vector []float32
		vector, embedErr = s.embedder.Embed(ctx, query)
		if embedErr != nil {
			return
		}
		vectorRefs, vectorErr = s.store.SearchVector(ctx, vector, fetch, documentID)
	}()
	go func() {
		defer wg.Done()
		keywordRefs, keywordErr = s.store.SearchKeyword(ctx, query, fetch, documentID)
	}()
	wg.Wait()

	if embedErr != nil {
		slog.Warn("query_embedding_failed_keyword_only", "error", embedErr)
		if keywordErr != nil {
			return nil, keywordErr
		}
	}
	if vectorErr != nil && keywordErr != nil {
		return nil, vectorErr
	}
	if vectorErr != nil {
		slog.Warn("vector_search_failed_keyword_only", "error", vectorErr)
		vectorRefs = nil
	}
	if keywordErr != nil {
		slog.Warn("keyword_search_failed_vector_only", "error", keywordErr)
		keywordRefs = nil
	}

	fused := fuseRankedLists(vectorRefs, keywordRefs)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	if len(fused) == 0 {
		return nil, nil
	}

	ids := make([]string, len(fused))
	for i, candidate := range fused {
		ids[i] = candidate.ChunkID
	}
	details, err := s.store.HydrateChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range fused {
		detail := details[fused[i].ChunkID]
		fused[i].Content = detail.Content
		fused[i].SectionTitle = detail.SectionTitle
		fused[i].DocumentTitle = detail.DocumentTitle
	}
	return fused, nil
}

// fuseRankedLists assigns each chunk 1/(k+rank) per list it appears in, with
// 1-based ranks, and orders by the weighted sum. Ties break deterministically
// by document id, then chunk index.
func fuseRankedLists(vectorRefs, keywordRefs []domain.ChunkRef) []domain.HybridChunkResult {
	byID := make(map[string]*domain.HybridChunkResult, len(vectorRefs)+len(keywordRefs))
	order := make([]string, 0, len(vectorRefs)+len(keywordRefs))

	entry := func(ref domain.ChunkRef) *domain.HybridChunkResult {
		if existing, ok := byID[ref.ChunkID]; ok {
			return existing
		}
		result := &domain.HybridChunkResult{
			ChunkID:    ref.ChunkID,
			DocumentID: ref.DocumentID,
		}
		byID[ref.ChunkID] = result
		order = append(order, ref.ChunkID)
		return result
	}

	chunkIndex := make(map[string]int, len(vectorRefs)+len(keywordRefs))
	for rank, ref := range vectorRefs {
		entry(ref).VectorScore = 1.0 / float64(rrfK+rank+1)
		chunkIndex[ref.ChunkID] = ref.ChunkIndex
	}
	for rank, ref := range keywordRefs {
		entry(ref).KeywordScore = 1.0 / float64(rrfK+rank+1)
		chunkIndex[ref.ChunkID] = ref.ChunkIndex
	}

	fused := make([]domain.HybridChunkResult, 0, len(order))
	for _, id := range order {
		result := byID[id]
		result.CombinedScore = vectorWeight*result.VectorScore + keywordWeight*result.KeywordScore
		fused = append(fused, *result)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].CombinedScore != fused[j].CombinedScore {
			return fused[i].CombinedScore > fused[j].CombinedScore
		}
		if fused[i].DocumentID != fused[j].DocumentID {
			return fused[i].DocumentID < fused[j].DocumentID
		}
		return chunkIndex[fused[i].ChunkID] < chunkIndex[fused[j].ChunkID]
	})
	return fused
}
