package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
)

// CacheRepository stores full pipeline results keyed by a hash of the
// normalized query text. Expiry is enforced on read as well as by the
// periodic cleanup, so a stale row never surfaces as a hit.
type CacheRepository struct {
	db *sql.DB
}

func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db}
}

func hashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func (r *CacheRepository) Get(ctx context.Context, query string) (*domain.QueryResult, bool, error) {
	key := hashQuery(query)

	var payload []byte
	var expiresAt time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT result, expires_at FROM answer_cache WHERE query_hash = $1`,
		key,
	).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.WrapError(domain.ErrStore, "cache get", err)
	}

	if !expiresAt.After(time.Now()) {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM answer_cache WHERE query_hash = $1`, key); err != nil {
			slog.Warn("cache_expired_delete_failed", "error", err)
		}
		return nil, false, nil
	}

	var result domain.QueryResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false, domain.WrapError(domain.ErrStore, "cache get: decode", err)
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE answer_cache SET hit_count = hit_count + 1, last_accessed_at = now() WHERE query_hash = $1`,
		key,
	); err != nil {
		slog.Warn("cache_hit_count_update_failed", "error", err)
	}
	return &result, true, nil
}

// Set upserts the entry with a fresh creation time and expiry. The hit count
// of a replaced entry is preserved, popularity survives re-answers.
func (r *CacheRepository) Set(ctx context.Context, query string, result *domain.QueryResult, ttl time.Duration) error {
	if result == nil {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return domain.WrapError(domain.ErrStore, "cache set: encode", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO answer_cache (query_hash, query, result, created_at, expires_at, last_accessed_at)
		 VALUES ($1, $2, $3, now(), now() + $4 * INTERVAL '1 second', now())
		 ON CONFLICT (query_hash) DO UPDATE
		 SET query            = EXCLUDED.query,
		     result           = EXCLUDED.result,
		     created_at       = now(),
		     expires_at       = EXCLUDED.expires_at,
		     last_accessed_at = now()`,
		hashQuery(query), query, payload, int64(ttl.Seconds()),
	)
	if err != nil {
		return domain.WrapError(domain.ErrStore, "cache set", err)
	}
	return nil
}

func (r *CacheRepository) InvalidateAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM answer_cache`); err != nil {
		return domain.WrapError(domain.ErrStore, "cache invalidate all", err)
	}
	return nil
}

func (r *CacheRepository) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM answer_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, domain.WrapError(domain.ErrStore, "cache cleanup", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, domain.WrapError(domain.ErrStore, "cache cleanup: rows affected", err)
	}
	return removed, nil
}

func (r *CacheRepository) Stats(ctx context.Context) (domain.CacheStats, error) {
	var stats domain.CacheStats
	var oldest, newest sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(hit_count), 0),
		        COALESCE(AVG(hit_count), 0),
		        MIN(created_at),
		        MAX(created_at),
		        COALESCE(SUM(LENGTH(result::text)), 0)
		 FROM answer_cache`,
	).Scan(&stats.Entries, &stats.TotalHits, &stats.AvgHits, &oldest, &newest, &stats.ApproxSizeBytes)
	if err != nil {
		return domain.CacheStats{}, domain.WrapError(domain.ErrStore, "cache stats", err)
	}
	if oldest.Valid {
		stats.Oldest = oldest.Time
	}
	if newest.Valid {
		stats.Newest = newest.Time
	}
	return stats, nil
}

func (r *CacheRepository) TopQueries(ctx context.Context, n int) ([]domain.CachedQuery, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT query, hit_count, last_accessed_at
		 FROM answer_cache
		 ORDER BY hit_count DESC, last_accessed_at DESC
		 LIMIT $1`,
		n,
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStore, "cache top queries", err)
	}
	defer rows.Close()

	var queries []domain.CachedQuery
	for rows.Next() {
		var cached domain.CachedQuery
		if err := rows.Scan(&cached.Query, &cached.HitCount, &cached.LastAccessedAt); err != nil {
			return nil, domain.WrapError(domain.ErrStore, "cache top queries: scan", err)
		}
		queries = append(queries, cached)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrStore, "cache top queries", err)
	}
	return queries, nil
}
