package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
	"github.com/avelichko/kb-pipeline/internal/core/ports"
)

const (
	PresetStandard = "standard"
	PresetQuick    = "quick"
	PresetPremium  = "premium"

	StrategyLLM       = "llm"
	StrategyHeuristic = "heuristic"

	DefaultCacheTTL = time.Hour

	emptyCorpusAnswer = "I could not find any relevant documentation for this question."
	degradedAnswer    = "I could not produce an answer right now. Please try again shortly."

	snippetRunes = 200
)

// PipelineConfig is a fully resolved set of pipeline knobs.
type PipelineConfig struct {
	SearchLimit    int
	RerankTopK     int
	RerankEnabled  bool
	RerankStrategy string
	CacheEnabled   bool
	MetricsEnabled bool
}

func StandardPreset() PipelineConfig {
	return PipelineConfig{
		SearchLimit:    15,
		RerankTopK:     5,
		RerankEnabled:  true,
		RerankStrategy: StrategyLLM,
		CacheEnabled:   true,
		MetricsEnabled: true,
	}
}

// QuickPreset trades ranking quality for latency: no rerank model call, no
// metrics write.
func QuickPreset() PipelineConfig {
	return PipelineConfig{
		SearchLimit:    10,
		RerankTopK:     5,
		RerankEnabled:  false,
		RerankStrategy: StrategyHeuristic,
		CacheEnabled:   true,
		MetricsEnabled: false,
	}
}

func PremiumPreset() PipelineConfig {
	return PipelineConfig{
		SearchLimit:    20,
		RerankTopK:     8,
		RerankEnabled:  true,
		RerankStrategy: StrategyLLM,
		CacheEnabled:   true,
		MetricsEnabled: true,
	}
}

func BuiltinPresets() map[string]PipelineConfig {
	return map[string]PipelineConfig{
		PresetStandard: StandardPreset(),
		PresetQuick:    QuickPreset(),
		PresetPremium:  PremiumPreset(),
	}
}

// Apply overlays per-request overrides; nil pointers keep the preset value.
func (c PipelineConfig) Apply(opts domain.QueryOptions) PipelineConfig {
	if opts.SearchLimit != nil && *opts.SearchLimit > 0 {
		c.SearchLimit = *opts.SearchLimit
	}
	if opts.RerankTopK != nil && *opts.RerankTopK > 0 {
		c.RerankTopK = *opts.RerankTopK
	}
	if opts.RerankEnabled != nil {
		c.RerankEnabled = *opts.RerankEnabled
	}
	if opts.RerankStrategy != nil && *opts.RerankStrategy != "" {
		c.RerankStrategy = *opts.RerankStrategy
	}
	if opts.CacheEnabled != nil {
		c.CacheEnabled = *opts.CacheEnabled
	}
	if opts.MetricsEnabled != nil {
		c.MetricsEnabled = *opts.MetricsEnabled
	}
	return c
}

// PipelineParams wires the orchestrator's collaborators.
type PipelineParams struct {
	Searcher      *HybridSearcher
	Generator     ports.AnswerGenerator
	Rerankers     map[string]ports.Reranker
	Cache         ports.AnswerCache
	Metrics       ports.MetricsStore
	Observer      ports.PipelineObserver
	Presets       map[string]PipelineConfig
	DefaultPreset string
	CacheTTL      time.Duration
}

// Pipeline orchestrates cache lookup, hybrid search, reranking, answer
// generation and the asynchronous metrics/cache tail. Answer never returns
// an error: every critical-path failure degrades to a safe response.
type Pipeline struct {
	searcher      *HybridSearcher
	generator     ports.AnswerGenerator
	rerankers     map[string]ports.Reranker
	cache         ports.AnswerCache
	metrics       ports.MetricsStore
	observer      ports.PipelineObserver
	presets       map[string]PipelineConfig
	defaultPreset string
	cacheTTL      time.Duration
}

func NewPipeline(params PipelineParams) *Pipeline {
	presets := params.Presets
	if len(presets) == 0 {
		presets = BuiltinPresets()
	}
	defaultPreset := params.DefaultPreset
	if _, ok := presets[defaultPreset]; !ok {
		defaultPreset = PresetStandard
	}
	cacheTTL := params.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	observer := params.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &Pipeline{
		searcher:      params.Searcher,
		generator:     params.Generator,
		rerankers:     params.Rerankers,
		cache:         params.Cache,
		metrics:       params.Metrics,
		observer:      observer,
		presets:       presets,
		defaultPreset: defaultPreset,
		cacheTTL:      cacheTTL,
	}
}

func (p *Pipeline) Answer(ctx context.Context, question string, opts domain.QueryOptions) *domain.QueryResult {
	started := time.Now()
	cfg := p.configFor(opts)

	question = strings.TrimSpace(question)
	if question == "" {
		result := &domain.QueryResult{
			QueryID:    uuid.NewString(),
			Answer:     "Please provide a question.",
			Confidence: 0,
			Fallback:   true,
		}
		p.observer.ObserveQuery("invalid", 0, time.Since(started))
		return result
	}

	if cfg.CacheEnabled && p.cache != nil {
		cached, hit, err := p.cache.Get(ctx, question)
		if err != nil {
			slog.Warn("cache_lookup_failed", "error", err)
		}
		p.observer.ObserveCacheLookup(hit)
		if hit {
			cached.CacheHit = true
			// The stored stage durations belong to the run that filled the
			// cache; a hit does no search, rerank or generation work.
			cached.Metrics.VectorSearchMs = 0
			cached.Metrics.RerankMs = 0
			cached.Metrics.GenerationMs = 0
			cached.Metrics.TotalMs = time.Since(started).Milliseconds()
			p.observer.ObserveQuery("cache_hit", len(cached.Sources), time.Since(started))
			return cached
		}
	}

	queryID := uuid.NewString()
	metrics := domain.QueryMetrics{}

	searchStart := time.Now()
	chunks, err := p.searcher.Search(ctx, question, cfg.SearchLimit, "")
	metrics.VectorSearchMs = time.Since(searchStart).Milliseconds()
	p.observer.ObserveStage("search", time.Since(searchStart))
	if err != nil {
		slog.Error("hybrid_search_failed", "query_id", queryID, "error", err)
		return p.degraded(ctx, cfg, queryID, question, metrics, started)
	}
	metrics.ChunksRetrieved = len(chunks)

	if len(chunks) == 0 {
		metrics.TotalMs = time.Since(started).Milliseconds()
		result := &domain.QueryResult{
			QueryID:           queryID,
			Answer:            emptyCorpusAnswer,
			Confidence:        0,
			FollowUpQuestions: nil,
			Metrics:           metrics,
		}
		// The metric row is still written once per query, but an answer
		// produced without any retrieved chunks is not worth a cache slot.
		if cfg.MetricsEnabled && p.metrics != nil {
			p.asyncRecord(ctx, question, result)
		}
		p.observer.ObserveQuery("no_results", 0, time.Since(started))
		return result
	}

	if cfg.RerankEnabled {
		rerankStart := time.Now()
		chunks = p.rerank(ctx, cfg, question, chunks)
		metrics.RerankMs = time.Since(rerankStart).Milliseconds()
		p.observer.ObserveStage("rerank", time.Since(rerankStart))
	} else if len(chunks) > cfg.RerankTopK {
		chunks = chunks[:cfg.RerankTopK]
	}
	metrics.ChunksAfterRerank = len(chunks)

	generationStart := time.Now()
	var generated struct {
		Answer            string   `json:"answer"`
		Confidence        float64  `json:"confidence"`
		FollowUpQuestions []string `json:"follow_up_questions"`
	}
	genErr := p.generator.GenerateStructured(ctx, buildAnswerPrompt(question, chunks), &generated)
	metrics.GenerationMs = time.Since(generationStart).Milliseconds()
	p.observer.ObserveStage("generation", time.Since(generationStart))
	if genErr != nil || strings.TrimSpace(generated.Answer) == "" {
		slog.Error("answer_generation_failed", "query_id", queryID, "error", genErr)
		return p.degraded(ctx, cfg, queryID, question, metrics, started)
	}

	metrics.TotalMs = time.Since(started).Milliseconds()
	result := &domain.QueryResult{
		QueryID:           queryID,
		Answer:            generated.Answer,
		Sources:           collectSources(chunks),
		Confidence:        clamp01(generated.Confidence),
		FollowUpQuestions: generated.FollowUpQuestions,
		Chunks:            chunks,
		Metrics:           metrics,
	}

	p.recordTail(ctx, cfg, question, result)
	p.observer.ObserveQuery("ok", len(result.Sources), time.Since(started))
	return result
}

func (p *Pipeline) configFor(opts domain.QueryOptions) PipelineConfig {
	name := opts.Preset
	cfg, ok := p.presets[name]
	if !ok {
		if name != "" {
			slog.Warn("unknown_preset", "preset", name, "fallback", p.defaultPreset)
		}
		cfg = p.presets[p.defaultPreset]
	}
	return cfg.Apply(opts)
}

// rerank reorders chunks by the configured strategy. Rerankers never fail a
// query; an unknown strategy or an error keeps the hybrid order, trimmed to
// topK.
func (p *Pipeline) rerank(ctx context.Context, cfg PipelineConfig, question string, chunks []domain.HybridChunkResult) []domain.HybridChunkResult {
	reranker, ok := p.rerankers[cfg.RerankStrategy]
	if !ok {
		slog.Warn("unknown_rerank_strategy", "strategy", cfg.RerankStrategy)
		if len(chunks) > cfg.RerankTopK {
			chunks = chunks[:cfg.RerankTopK]
		}
		return chunks
	}

	results, err := reranker.Rerank(ctx, question, chunks, cfg.RerankTopK)
	if err != nil || len(results) == 0 {
		slog.Warn("rerank_kept_hybrid_order", "error", err)
		if len(chunks) > cfg.RerankTopK {
			chunks = chunks[:cfg.RerankTopK]
		}
		return chunks
	}

	byID := make(map[string]domain.HybridChunkResult, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ChunkID] = chunk
	}
	reordered := make([]domain.HybridChunkResult, 0, len(results))
	for _, result := range results {
		if chunk, ok := byID[result.ChunkID]; ok {
			reordered = append(reordered, chunk)
		}
	}
	return reordered
}

// degraded produces the safe response used when search or generation fails.
// It is never cached; metrics still record the attempt.
func (p *Pipeline) degraded(ctx context.Context, cfg PipelineConfig, queryID, question string, metrics domain.QueryMetrics, started time.Time) *domain.QueryResult {
	metrics.TotalMs = time.Since(started).Milliseconds()
	result := &domain.QueryResult{
		QueryID:    queryID,
		Answer:     degradedAnswer,
		Confidence: 0,
		Metrics:    metrics,
		Fallback:   true,
	}
	if cfg.MetricsEnabled && p.metrics != nil {
		p.asyncRecord(ctx, question, result)
	}
	p.observer.ObserveQuery("degraded", 0, time.Since(started))
	return result
}

// recordTail runs the metrics write and cache fill off the request path. The
// detached context keeps the writes alive after the response is sent.
func (p *Pipeline) recordTail(ctx context.Context, cfg PipelineConfig, question string, result *domain.QueryResult) {
	if cfg.MetricsEnabled && p.metrics != nil {
		p.asyncRecord(ctx, question, result)
	}
	if cfg.CacheEnabled && p.cache != nil && !result.Fallback {
		detached := context.WithoutCancel(ctx)
		cached := *result
		go func() {
			if err := p.cache.Set(detached, question, &cached, p.cacheTTL); err != nil {
				slog.Warn("cache_fill_failed", "query_id", cached.QueryID, "error", err)
			}
		}()
	}
}

func (p *Pipeline) asyncRecord(ctx context.Context, question string, result *domain.QueryResult) {
	detached := context.WithoutCancel(ctx)
	metric := domain.SearchMetric{
		QueryID:           result.QueryID,
		Query:             question,
		VectorSearchMs:    result.Metrics.VectorSearchMs,
		RerankMs:          result.Metrics.RerankMs,
		GenerationMs:      result.Metrics.GenerationMs,
		TotalMs:           result.Metrics.TotalMs,
		ChunksRetrieved:   result.Metrics.ChunksRetrieved,
		ChunksAfterRerank: result.Metrics.ChunksAfterRerank,
		Confidence:        result.Confidence,
	}
	go func() {
		if err := p.metrics.Record(detached, metric); err != nil {
			slog.Warn("metric_record_failed", "query_id", metric.QueryID, "error", err)
		}
	}()
}

func collectSources(chunks []domain.HybridChunkResult) []domain.Source {
	seen := make(map[string]bool, len(chunks))
	sources := make([]domain.Source, 0, len(chunks))
	for _, chunk := range chunks {
		if seen[chunk.DocumentID] {
			continue
		}
		seen[chunk.DocumentID] = true
		sources = append(sources, domain.Source{
			DocumentID:    chunk.DocumentID,
			DocumentTitle: chunk.DocumentTitle,
			Snippet:       snippet(chunk.Content),
		})
	}
	return sources
}

func snippet(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= snippetRunes {
		return string(runes)
	}
	return string(runes[:snippetRunes]) + "…"
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, time.Duration)      {}
func (noopObserver) ObserveCacheLookup(bool)                 {}
func (noopObserver) ObserveQuery(string, int, time.Duration) {}
