package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/easyrag/easyrag/internal/user"
)

type documentHandler struct {
	users     UserStore
	pipeline  Pipeline
	maxUpload int64
	logger    *slog.Logger
}

type uploadResponse struct {
	DocumentID int64  `json:"document_id"`
	Filename   string `json:"filename"`
	Chunks     int    `json:"chunks"`
}

// upload ingests a text document into the user's knowledge base. Accepts
// either a multipart "file" part or a raw text body with a filename query
// parameter. The document record is only written after ingestion succeeds,
// so a failed upload leaves no trace.
func (h *documentHandler) upload(w http.ResponseWriter, r *http.Request) {
	u, ok := pathUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	filename, text, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "document is empty", h.logger)
		return
	}

	chunks, err := h.pipeline.Ingest(r.Context(), u.TenantID(), text, filename)
	if err != nil {
		h.logger.Error("ingest failed", "user_id", u.ID, "filename", filename, "error", err)
		writeServiceError(w, err, h.logger)
		return
	}

	doc, err := h.users.AddDocument(r.Context(), u.ID, filename)
	if err != nil {
		h.logger.Error("document record failed", "user_id", u.ID, "filename", filename, "error", err)
		writeServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("document ingested",
		"user_id", u.ID,
		"filename", filename,
		"chunks", chunks,
	)

	writeJSON(w, http.StatusCreated, uploadResponse{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Chunks:     chunks,
	}, h.logger)
}

// readUpload extracts the filename and text content from the request body.
// Writes the error response itself; the bool reports success.
func (h *documentHandler) readUpload(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", `multipart form must contain a "file" part`, h.logger)
			return "", "", false
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			h.writeBodyError(w, err)
			return "", "", false
		}

		// Strip any client-supplied directory components.
		return filepath.Base(header.Filename), string(data), true
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeBodyError(w, err)
		return "", "", false
	}

	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	if filename == "" {
		filename = "untitled.txt"
	}
	return filepath.Base(filename), string(data), true
}

func (h *documentHandler) writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "document exceeds upload size limit", h.logger)
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_request", "failed to read request body", h.logger)
}

// list returns the user's uploaded documents, newest first.
func (h *documentHandler) list(w http.ResponseWriter, r *http.Request) {
	u, ok := pathUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	docs, err := h.users.ListDocuments(r.Context(), u.ID)
	if err != nil {
		h.logger.Error("document list failed", "user_id", u.ID, "error", err)
		writeServiceError(w, err, h.logger)
		return
	}
	if docs == nil {
		docs = []user.Document{}
	}

	writeJSON(w, http.StatusOK, docs, h.logger)
}
