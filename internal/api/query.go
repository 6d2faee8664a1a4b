package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/easyrag/easyrag/internal/rag"
)

// maxQuestionLen bounds the q parameter so pathological inputs never reach
// the embedding backend.
const maxQuestionLen = 8 << 10

type queryHandler struct {
	users        UserStore
	pipeline     Pipeline
	defaultLimit int
	logger       *slog.Logger
}

// query answers a question against the user's knowledge base.
// An optional limit parameter overrides the number of context chunks.
func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	u, ok := pathUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	question := strings.TrimSpace(r.URL.Query().Get("q"))
	if question == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query parameter q is required", h.logger)
		return
	}
	if len(question) > maxQuestionLen {
		writeError(w, http.StatusBadRequest, "invalid_request", "question is too long", h.logger)
		return
	}

	var opts []rag.Option
	if h.defaultLimit > 0 {
		opts = append(opts, rag.WithContextLimit(h.defaultLimit))
	}
	// A per-request limit overrides the configured default.
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer", h.logger)
			return
		}
		opts = append(opts, rag.WithContextLimit(limit))
	}

	answer, err := h.pipeline.Answer(r.Context(), u.TenantID(), question, opts...)
	if err != nil {
		h.logger.Error("query failed", "user_id", u.ID, "error", err)
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, answer, h.logger)
}
