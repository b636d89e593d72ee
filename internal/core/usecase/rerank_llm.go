package usecase

import (
	"context"
	"log/slog"
	"sort"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
	"github.com/avelichko/kb-pipeline/internal/core/ports"
)

const defaultRerankTopK = 5

// LLMReranker asks the generation model to score fused candidates against
// the query. It never fails a query: malformed or unusable model output
// degrades to a deterministic rank-preserving fallback.
type LLMReranker struct {
	generator ports.AnswerGenerator
}

func NewLLMReranker(generator ports.AnswerGenerator) *LLMReranker {
	return &LLMReranker{generator: generator}
}

func (r *LLMReranker) Rerank(ctx context.Context, query string, candidates []domain.HybridChunkResult, topK int) ([]domain.RerankResult, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	topK = normalizeTopK(topK, len(candidates))

	var decoded struct {
		Results []domain.RerankResult `json:"results"`
	}
	err := r.generator.GenerateStructured(ctx, buildRerankPrompt(query, candidates), &decoded)
	if err != nil {
		slog.Warn("rerank_degraded_to_fallback", "error", err)
		return fallbackOrder(candidates, topK), nil
	}

	valid := validateRerankResults(decoded.Results, candidates)
	if len(valid) == 0 {
		slog.Warn("rerank_degraded_to_fallback", "reason", "no valid candidate references in model output")
		return fallbackOrder(candidates, topK), nil
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].RelevanceScore > valid[j].RelevanceScore
	})
	if len(valid) > topK {
		valid = valid[:topK]
	}
	return valid, nil
}

// validateRerankResults keeps only results that reference a real candidate,
// drops duplicates, and clamps scores into [0, 1].
func validateRerankResults(results []domain.RerankResult, candidates []domain.HybridChunkResult) []domain.RerankResult {
	known := make(map[string]bool, len(candidates))
	for _, candidate := range candidates {
		known[candidate.ChunkID] = true
	}

	seen := make(map[string]bool, len(results))
	valid := make([]domain.RerankResult, 0, len(results))
	for _, result := range results {
		if !known[result.ChunkID] || seen[result.ChunkID] {
			continue
		}
		seen[result.ChunkID] = true
		result.RelevanceScore = clamp01(result.RelevanceScore)
		valid = append(valid, result)
	}
	return valid
}

// fallbackOrder preserves the hybrid ranking with descending synthetic
// scores: 1.0 for the first candidate, stepping down 0.1 per position,
// floored at zero.
func fallbackOrder(candidates []domain.HybridChunkResult, topK int) []domain.RerankResult {
	if topK > len(candidates) {
		topK = len(candidates)
	}
	results := make([]domain.RerankResult, 0, topK)
	for i := 0; i < topK; i++ {
		results = append(results, domain.RerankResult{
			ChunkID:        candidates[i].ChunkID,
			RelevanceScore: max(0, 1.0-0.1*float64(i)),
			Reasoning:      "hybrid search order preserved",
		})
	}
	return results
}

func normalizeTopK(topK, candidateCount int) int {
	if topK <= 0 {
		topK = defaultRerankTopK
	}
	if topK > candidateCount {
		topK = candidateCount
	}
	return topK
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
