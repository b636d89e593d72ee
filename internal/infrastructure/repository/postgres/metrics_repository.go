package postgres

import (
	"context"
	"database/sql"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
)

const defaultRetentionDays = 90

// MetricsRepository persists one row per pipeline run plus an optional
// later feedback update.
type MetricsRepository struct {
	db *sql.DB
}

func NewMetricsRepository(db *sql.DB) *MetricsRepository {
	return &MetricsRepository{db: db}
}

func (r *MetricsRepository) Record(ctx context.Context, metric domain.SearchMetric) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO search_metrics
		 (query_id, query, created_at, vector_search_ms, rerank_ms, generation_ms, total_ms, chunks_retrieved, chunks_after_rerank, confidence)
		 VALUES ($1, $2, now(), $3, $4, $5, $6, $7, $8, $9)`,
		metric.QueryID,
		metric.Query,
		metric.VectorSearchMs,
		metric.RerankMs,
		metric.GenerationMs,
		metric.TotalMs,
		metric.ChunksRetrieved,
		metric.ChunksAfterRerank,
		metric.Confidence,
	)
	if err != nil {
		return domain.WrapError(domain.ErrStore, "record metric", err)
	}
	return nil
}

func (r *MetricsRepository) RecordFeedback(ctx context.Context, queryID, feedback string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE search_metrics SET feedback = $2 WHERE query_id = $1`,
		queryID, feedback,
	)
	if err != nil {
		return domain.WrapError(domain.ErrStore, "record feedback", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.WrapError(domain.ErrStore, "record feedback: rows affected", err)
	}
	if affected == 0 {
		return domain.ErrMetricNotFound
	}
	return nil
}

// Summary aggregates the trailing window. HelpfulRate divides by rated
// queries only; with no rated queries it stays zero.
func (r *MetricsRepository) Summary(ctx context.Context, days int) (*domain.MetricsSummary, error) {
	if days <= 0 {
		days = 7
	}

	summary := &domain.MetricsSummary{}
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(AVG(vector_search_ms), 0),
		        COALESCE(AVG(rerank_ms), 0),
		        COALESCE(AVG(generation_ms), 0),
		        COALESCE(AVG(total_ms), 0),
		        COALESCE(AVG(confidence), 0),
		        COALESCE(
		            COUNT(*) FILTER (WHERE feedback = 'helpful')::float
		            / NULLIF(COUNT(*) FILTER (WHERE feedback IS NOT NULL), 0),
		            0)
		 FROM search_metrics
		 WHERE created_at >= now() - make_interval(days => $1)`,
		days,
	).Scan(
		&summary.TotalSearches,
		&summary.AvgVectorSearchMs,
		&summary.AvgRerankMs,
		&summary.AvgGenerationMs,
		&summary.AvgTotalMs,
		&summary.AvgConfidence,
		&summary.HelpfulRate,
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStore, "metrics summary", err)
	}

	topQueries, err := r.topQueries(ctx, days, 10)
	if err != nil {
		return nil, err
	}
	summary.TopQueries = topQueries

	slowest, err := r.slowestQueries(ctx, days, 10)
	if err != nil {
		return nil, err
	}
	summary.SlowestQueries = slowest

	return summary, nil
}

func (r *MetricsRepository) topQueries(ctx context.Context, days, limit int) ([]domain.QueryFrequency, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT query, COUNT(*) AS frequency
		 FROM search_metrics
		 WHERE created_at >= now() - make_interval(days => $1)
		 GROUP BY query
		 ORDER BY frequency DESC, query ASC
		 LIMIT $2`,
		days, limit,
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStore, "metrics summary: top queries", err)
	}
	defer rows.Close()

	var frequencies []domain.QueryFrequency
	for rows.Next() {
		var frequency domain.QueryFrequency
		if err := rows.Scan(&frequency.Query, &frequency.Count); err != nil {
			return nil, domain.WrapError(domain.ErrStore, "metrics summary: top queries scan", err)
		}
		frequencies = append(frequencies, frequency)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrStore, "metrics summary: top queries", err)
	}
	return frequencies, nil
}

func (r *MetricsRepository) slowestQueries(ctx context.Context, days, limit int) ([]domain.SlowQuery, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT query, total_ms
		 FROM search_metrics
		 WHERE created_at >= now() - make_interval(days => $1)
		 ORDER BY total_ms DESC
		 LIMIT $2`,
		days, limit,
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStore, "metrics summary: slowest queries", err)
	}
	defer rows.Close()

	var slow []domain.SlowQuery
	for rows.Next() {
		var entry domain.SlowQuery
		if err := rows.Scan(&entry.Query, &entry.TotalMs); err != nil {
			return nil, domain.WrapError(domain.ErrStore, "metrics summary: slowest queries scan", err)
		}
		slow = append(slow, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrStore, "metrics summary: slowest queries", err)
	}
	return slow, nil
}

func (r *MetricsRepository) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM search_metrics WHERE created_at < now() - make_interval(days => $1)`,
		retentionDays,
	)
	if err != nil {
		return 0, domain.WrapError(domain.ErrStore, "metrics cleanup", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, domain.WrapError(domain.ErrStore, "metrics cleanup: rows affected", err)
	}
	return removed, nil
}
