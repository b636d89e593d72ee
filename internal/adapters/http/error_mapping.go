package http

import (
	"log/slog"
	"net/http"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
	"github.com/avelichko/kb-pipeline/internal/infrastructure/resilience"
)

// writeMappedError translates typed domain errors into status codes without
// leaking internal detail in the response body.
func writeMappedError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsKind(err, domain.ErrMetricNotFound), domain.IsKind(err, domain.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case domain.IsKind(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.IsKind(err, domain.ErrTemporary), resilience.IsCircuitOpen(err):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, retry later")
	default:
		slog.Error("request_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
