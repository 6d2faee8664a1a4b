package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/easyrag/easyrag/internal/user"
)

// maxUsernameLen mirrors the users.username column width.
const maxUsernameLen = 64

type userHandler struct {
	users  UserStore
	logger *slog.Logger
}

type registerRequest struct {
	Username string `json:"username"`
}

// register creates an account, or returns the existing one for the same
// username. Registration is idempotent so clients can retry safely.
func (h *userHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", h.logger)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Username) > maxUsernameLen {
		writeError(w, http.StatusBadRequest, "invalid_request", "username must be 1-64 characters", h.logger)
		return
	}

	u, err := h.users.Register(r.Context(), req.Username)
	if err != nil {
		h.logger.Error("register failed", "username", req.Username, "error", err)
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, u, h.logger)
}

// pathUser resolves the {id} path segment to a registered user.
// Writes the error response itself; the bool reports success.
func pathUser(w http.ResponseWriter, r *http.Request, users UserStore, logger *slog.Logger) (user.User, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid user id", logger)
		return user.User{}, false
	}

	u, err := users.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "user not found", logger)
			return user.User{}, false
		}
		logger.Error("user lookup failed", "user_id", id, "error", err)
		writeServiceError(w, err, logger)
		return user.User{}, false
	}

	return u, true
}
