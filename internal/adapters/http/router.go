package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
	"github.com/avelichko/kb-pipeline/internal/core/ports"
)

// Router exposes the pipeline over HTTP. Prometheus exposition is mounted
// separately by the caller on /metrics.
type Router struct {
	query    ports.QueryService
	feedback ports.FeedbackService
	indexer  ports.IndexService
	cache    ports.AnswerCache
	metrics  ports.MetricsStore
	feed     ports.ChangeFeed
}

func NewRouter(
	query ports.QueryService,
	feedback ports.FeedbackService,
	indexer ports.IndexService,
	cache ports.AnswerCache,
	metrics ports.MetricsStore,
	feed ports.ChangeFeed,
) *Router {
	return &Router{
		query:    query,
		feedback: feedback,
		indexer:  indexer,
		cache:    cache,
		metrics:  metrics,
		feed:     feed,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/query", rt.handleQuery)
	mux.HandleFunc("POST /v1/feedback", rt.handleFeedback)
	mux.HandleFunc("POST /v1/reindex", rt.handleReindex)
	mux.HandleFunc("POST /v1/documents/{id}/reindex", rt.handleDocumentReindex)
	mux.HandleFunc("GET /v1/cache/stats", rt.handleCacheStats)
	mux.HandleFunc("POST /v1/cache/cleanup", rt.handleCacheCleanup)
	mux.HandleFunc("GET /v1/metrics/summary", rt.handleMetricsSummary)
	mux.HandleFunc("GET /healthz", rt.handleHealth)
	return withRequestID(withAccessLog(mux))
}

type queryRequest struct {
	Question string              `json:"question"`
	Options  domain.QueryOptions `json:"options"`
}

func (rt *Router) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	result := rt.query.Answer(r.Context(), req.Question, req.Options)
	writeJSON(w, http.StatusOK, result)
}

type feedbackRequest struct {
	QueryID  string `json:"query_id"`
	Feedback string `json:"feedback"`
}

func (rt *Router) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := rt.feedback.Submit(r.Context(), req.QueryID, req.Feedback); err != nil {
		writeMappedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleReindex(w http.ResponseWriter, r *http.Request) {
	report, err := rt.indexer.ReindexAll(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleDocumentReindex publishes a document-changed event; the index worker
// picks it up asynchronously.
func (rt *Router) handleDocumentReindex(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}
	if rt.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "change feed is not configured")
		return
	}
	if err := rt.feed.PublishDocumentChanged(r.Context(), id); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"document_id": id, "status": "queued"})
}

func (rt *Router) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.cache.Stats(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	top, err := rt.cache.TopQueries(r.Context(), 10)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":       stats,
		"top_queries": top,
	})
}

func (rt *Router) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := rt.cache.CleanupExpired(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (rt *Router) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}
	summary, err := rt.metrics.Summary(r.Context(), days)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := decoder.Decode(out); err != nil {
		return err
	}
	// Trailing garbage after the object is a client error too.
	if decoder.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("response_encode_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
