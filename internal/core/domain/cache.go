package domain

import "time"

type CacheStats struct {
	Entries         int       `json:"entries"`
	TotalHits       int       `json:"total_hits"`
	AvgHits         float64   `json:"avg_hits"`
	Oldest          time.Time `json:"oldest,omitzero"`
	Newest          time.Time `json:"newest,omitzero"`
	ApproxSizeBytes int64     `json:"approx_size_bytes"`
}

type CachedQuery struct {
	Query          string    `json:"query"`
	HitCount       int       `json:"hit_count"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}
