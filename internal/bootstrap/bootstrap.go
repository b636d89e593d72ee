package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	httpadapter "github.com/avelichko/kb-pipeline/internal/adapters/http"
	"github.com/avelichko/kb-pipeline/internal/config"
	"github.com/avelichko/kb-pipeline/internal/core/domain"
	"github.com/avelichko/kb-pipeline/internal/core/ports"
	"github.com/avelichko/kb-pipeline/internal/core/usecase"
	"github.com/avelichko/kb-pipeline/internal/infrastructure/chunking"
	"github.com/avelichko/kb-pipeline/internal/infrastructure/llm/ollama"
	natsfeed "github.com/avelichko/kb-pipeline/internal/infrastructure/queue/nats"
	"github.com/avelichko/kb-pipeline/internal/infrastructure/repository/postgres"
	"github.com/avelichko/kb-pipeline/internal/infrastructure/resilience"
	"github.com/avelichko/kb-pipeline/internal/observability/logging"
	"github.com/avelichko/kb-pipeline/internal/observability/metrics"
)

// App wires the pipeline's collaborators once; cmd/api and cmd/worker each
// use the slice of it they need.
type App struct {
	Config config.Config
	DB     *sql.DB

	Pipeline *usecase.Pipeline
	Indexer  *usecase.Indexer
	Feedback *usecase.Feedback

	Cache   ports.AnswerCache
	Metrics ports.MetricsStore
	Feed    *natsfeed.ChangeFeed

	PipelineMetrics *metrics.PipelineMetrics
	IndexerMetrics  *metrics.IndexerMetrics

	Handler http.Handler
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logging.Setup(cfg.LogLevel, "kb-pipeline")

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := postgres.EnsureSchema(ctx, db, cfg.EmbeddingDim); err != nil {
		db.Close()
		return nil, err
	}

	chunkRepo := postgres.NewChunkRepository(db)
	cacheRepo := postgres.NewCacheRepository(db)
	metricsRepo := postgres.NewMetricsRepository(db)
	docRepo := postgres.NewDocumentRepository(db)

	executor := resilience.NewExecutor(resilience.DefaultPolicy())
	client := ollama.New(cfg.OllamaURL, cfg.GenerationModel, cfg.EmbeddingModel, executor)
	embedder := ollama.NewEmbedder(client, cfg.EmbedRatePerSec, cfg.EmbedBurst)
	generator := ollama.NewGenerator(client)

	presets, err := buildPresets(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	pipelineMetrics := metrics.NewPipelineMetrics()
	pipeline := usecase.NewPipeline(usecase.PipelineParams{
		Searcher:  usecase.NewHybridSearcher(embedder, chunkRepo),
		Generator: generator,
		Rerankers: map[string]ports.Reranker{
			usecase.StrategyLLM:       usecase.NewLLMReranker(generator),
			usecase.StrategyHeuristic: usecase.NewHeuristicReranker(),
		},
		Cache:         cacheRepo,
		Metrics:       metricsRepo,
		Observer:      pipelineMetrics,
		Presets:       presets,
		DefaultPreset: cfg.DefaultPreset,
		CacheTTL:      cfg.CacheTTL,
	})

	chunker := chunking.NewChunker(cfg.ChunkTokens, cfg.ChunkOverlapTokens)
	indexer := usecase.NewIndexer(docRepo, chunker, embedder, chunkRepo, cacheRepo)
	feedback := usecase.NewFeedback(metricsRepo)

	feed, err := natsfeed.Connect(cfg.NATSURL, cfg.NATSSubject, executor)
	if err != nil {
		db.Close()
		return nil, err
	}

	router := httpadapter.NewRouter(pipeline, feedback, indexer, cacheRepo, metricsRepo, feed)

	return &App{
		Config:          cfg,
		DB:              db,
		Pipeline:        pipeline,
		Indexer:         indexer,
		Feedback:        feedback,
		Cache:           cacheRepo,
		Metrics:         metricsRepo,
		Feed:            feed,
		PipelineMetrics: pipelineMetrics,
		IndexerMetrics:  metrics.NewIndexerMetrics(),
		Handler:         router.Handler(),
	}, nil
}

func (a *App) Close() {
	if a.Feed != nil {
		a.Feed.Close()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			slog.Warn("db_close_failed", "error", err)
		}
	}
}

// buildPresets overlays the optional presets file on the built-in presets.
// A new preset name starts from the standard preset.
func buildPresets(cfg config.Config) (map[string]usecase.PipelineConfig, error) {
	presets := usecase.BuiltinPresets()

	overrides, err := config.LoadPresets(cfg.PresetsFile)
	if err != nil {
		return nil, err
	}
	for name, override := range overrides {
		base, ok := presets[name]
		if !ok {
			base = usecase.StandardPreset()
		}
		presets[name] = base.Apply(domain.QueryOptions{
			SearchLimit:    override.SearchLimit,
			RerankTopK:     override.RerankTopK,
			RerankEnabled:  override.RerankEnabled,
			RerankStrategy: override.RerankStrategy,
			CacheEnabled:   override.CacheEnabled,
			MetricsEnabled: override.MetricsEnabled,
		})
	}

	if _, ok := presets[cfg.DefaultPreset]; !ok {
		return nil, fmt.Errorf("default preset %q is not defined", cfg.DefaultPreset)
	}
	return presets, nil
}
