package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/easyrag/easyrag/internal/embed"
	"github.com/easyrag/easyrag/internal/index"
	"github.com/easyrag/easyrag/internal/llm"
	"github.com/easyrag/easyrag/internal/vecstore"
)

// writeServiceError maps domain errors onto HTTP status codes.
// Model backends failing is a bad gateway, the vector store being unreachable
// is temporary unavailability, everything else is an internal error.
func writeServiceError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "request timed out", logger)
	case errors.Is(err, embed.ErrModel), errors.Is(err, llm.ErrModel):
		writeError(w, http.StatusBadGateway, "model_error", "model backend failure", logger)
	case errors.Is(err, vecstore.ErrStore):
		writeError(w, http.StatusServiceUnavailable, "store_error", "vector store unavailable", logger)
	case errors.Is(err, index.ErrDimensionMismatch), errors.Is(err, index.ErrInvalidTenant):
		writeError(w, http.StatusInternalServerError, "internal_error", "index configuration error", logger)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", logger)
	}
}
