package usecase

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
)

const (
	titleTermBonus     = 0.3
	bodyOccurrenceStep = 0.1
	bodyOccurrenceCap  = 0.5

	idealChunkChars  = 500
	maxLengthPenalty = 0.3
)

// HeuristicReranker scores candidates without a model call: query-term
// matches in the section title and body, discounted by how far the chunk
// strays from the ideal length.
type HeuristicReranker struct{}

func NewHeuristicReranker() *HeuristicReranker {
	return &HeuristicReranker{}
}

func (r *HeuristicReranker) Rerank(_ context.Context, query string, candidates []domain.HybridChunkResult, topK int) ([]domain.RerankResult, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	topK = normalizeTopK(topK, len(candidates))

	terms := queryTerms(query)
	results := make([]domain.RerankResult, 0, len(candidates))
	for _, candidate := range candidates {
		results = append(results, domain.RerankResult{
			ChunkID:        candidate.ChunkID,
			RelevanceScore: heuristicScore(terms, candidate),
			Reasoning:      "term overlap and length heuristic",
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	return results[:topK], nil
}

func heuristicScore(terms []string, candidate domain.HybridChunkResult) float64 {
	title := strings.ToLower(candidate.SectionTitle)
	body := strings.ToLower(candidate.Content)

	var score float64
	for _, term := range terms {
		if strings.Contains(title, term) {
			score += titleTermBonus
		}
		if bonus := bodyOccurrenceStep * float64(strings.Count(body, term)); bonus > 0 {
			score += math.Min(bonus, bodyOccurrenceCap)
		}
	}

	length := utf8.RuneCountInString(candidate.Content)
	deviation := math.Abs(float64(length-idealChunkChars)) / idealChunkChars
	penalty := math.Min(maxLengthPenalty, maxLengthPenalty*deviation)
	return clamp01(score * (1 - penalty))
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		term := strings.Trim(field, `.,!?:;"'()`)
		// Single- and two-letter words carry no signal.
		if len(term) > 2 {
			terms = append(terms, term)
		}
	}
	return terms
}
