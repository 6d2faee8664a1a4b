package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/easyrag/easyrag/internal/embed"
	"github.com/easyrag/easyrag/internal/rag"
	"github.com/easyrag/easyrag/internal/user"
	"github.com/easyrag/easyrag/internal/vecstore"
)

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	return w
}

func registerUser(t *testing.T, srv *Server, username string) user.User {
	t.Helper()
	w := doJSON(t, srv, http.MethodPost, "/api/v1/register", registerRequest{Username: username})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %q: status = %d, body = %s", username, w.Code, w.Body.String())
	}
	var u user.User
	if err := json.Unmarshal(w.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return u
}

func TestRegister(t *testing.T) {
	srv := testServer(t, &mockPipeline{}, newMockUsers())

	u := registerUser(t, srv, "alice")
	if u.Username != "alice" {
		t.Errorf("username = %q, want alice", u.Username)
	}
	if u.ID == 0 {
		t.Error("id not assigned")
	}

	// Same username registers to the same account.
	again := registerUser(t, srv, "alice")
	if again.ID != u.ID {
		t.Errorf("re-register id = %d, want %d", again.ID, u.ID)
	}
}

func TestRegister_Invalid(t *testing.T) {
	srv := testServer(t, &mockPipeline{}, newMockUsers())

	tests := []struct {
		name string
		body string
	}{
		{name: "empty username", body: `{"username":""}`},
		{name: "whitespace username", body: `{"username":"   "}`},
		{name: "too long", body: fmt.Sprintf(`{"username":%q}`, strings.Repeat("a", 65))},
		{name: "malformed json", body: `{"username":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/register", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, r)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestUploadRawBody(t *testing.T) {
	pipeline := &mockPipeline{ingestN: 3}
	srv := testServer(t, pipeline, newMockUsers())
	u := registerUser(t, srv, "alice")

	path := fmt.Sprintf("/api/v1/users/%d/documents?filename=notes.txt", u.ID)
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader("the sky is blue"))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("upload: status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp uploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Chunks != 3 {
		t.Errorf("chunks = %d, want 3", resp.Chunks)
	}
	if resp.Filename != "notes.txt" {
		t.Errorf("filename = %q, want notes.txt", resp.Filename)
	}

	if len(pipeline.ingests) != 1 {
		t.Fatalf("ingest calls = %d, want 1", len(pipeline.ingests))
	}
	call := pipeline.ingests[0]
	if call.tenant != u.TenantID() {
		t.Errorf("tenant = %q, want %q", call.tenant, u.TenantID())
	}
	if call.text != "the sky is blue" {
		t.Errorf("text = %q", call.text)
	}
	if call.source != "notes.txt" {
		t.Errorf("source = %q", call.source)
	}
}

func TestUploadMultipart(t *testing.T) {
	pipeline := &mockPipeline{ingestN: 1}
	srv := testServer(t, pipeline, newMockUsers())
	u := registerUser(t, srv, "bob")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "report.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("quarterly numbers")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	path := fmt.Sprintf("/api/v1/users/%d/documents", u.ID)
	r := httptest.NewRequest(http.MethodPost, path, &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("upload: status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(pipeline.ingests) != 1 {
		t.Fatalf("ingest calls = %d, want 1", len(pipeline.ingests))
	}
	if got := pipeline.ingests[0].source; got != "report.txt" {
		t.Errorf("source = %q, want report.txt", got)
	}
}

func TestUpload_EmptyDocument(t *testing.T) {
	pipeline := &mockPipeline{}
	srv := testServer(t, pipeline, newMockUsers())
	u := registerUser(t, srv, "alice")

	path := fmt.Sprintf("/api/v1/users/%d/documents", u.ID)
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader("   \n\t"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if len(pipeline.ingests) != 0 {
		t.Error("empty document must not reach the pipeline")
	}
}

func TestUpload_TooLarge(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		Pipeline:  &mockPipeline{},
		Users:     newMockUsers(),
		RateBurst: 1000,
		MaxUpload: 16,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	u := registerUser(t, srv, "alice")

	path := fmt.Sprintf("/api/v1/users/%d/documents", u.ID)
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(strings.Repeat("x", 64)))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestUpload_UserNotFound(t *testing.T) {
	srv := testServer(t, &mockPipeline{}, newMockUsers())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/users/42/documents", strings.NewReader("text"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListDocuments(t *testing.T) {
	pipeline := &mockPipeline{ingestN: 1}
	srv := testServer(t, pipeline, newMockUsers())
	u := registerUser(t, srv, "alice")

	// Empty list serializes as [] rather than null.
	w := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/documents", u.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status = %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("empty list body = %q, want []", got)
	}

	path := fmt.Sprintf("/api/v1/users/%d/documents?filename=a.txt", u.ID)
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader("hello"))
	w2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w2, r)
	if w2.Code != http.StatusCreated {
		t.Fatalf("upload: status = %d", w2.Code)
	}

	w = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/documents", u.ID), nil)
	var docs []user.Document
	if err := json.Unmarshal(w.Body.Bytes(), &docs); err != nil {
		t.Fatalf("decode documents: %v", err)
	}
	if len(docs) != 1 || docs[0].Filename != "a.txt" {
		t.Errorf("documents = %+v", docs)
	}
}

func TestQuery(t *testing.T) {
	pipeline := &mockPipeline{answer: rag.Answer{
		Answer:  "The sky is blue.",
		Sources: []string{"notes.txt"},
	}}
	srv := testServer(t, pipeline, newMockUsers())
	u := registerUser(t, srv, "alice")

	path := fmt.Sprintf("/api/v1/users/%d/query?q=%s", u.ID, "what+color+is+the+sky")
	w := doJSON(t, srv, http.MethodGet, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("query: status = %d, body = %s", w.Code, w.Body.String())
	}

	var answer rag.Answer
	if err := json.Unmarshal(w.Body.Bytes(), &answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if answer.Answer != "The sky is blue." {
		t.Errorf("answer = %q", answer.Answer)
	}
	if len(answer.Sources) != 1 || answer.Sources[0] != "notes.txt" {
		t.Errorf("sources = %v", answer.Sources)
	}

	if len(pipeline.answers) != 1 {
		t.Fatalf("answer calls = %d, want 1", len(pipeline.answers))
	}
	if got := pipeline.answers[0].question; got != "what color is the sky" {
		t.Errorf("question = %q", got)
	}
}

func TestQuery_MissingQuestion(t *testing.T) {
	srv := testServer(t, &mockPipeline{}, newMockUsers())
	u := registerUser(t, srv, "alice")

	w := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/query", u.ID), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestQuery_InvalidLimit(t *testing.T) {
	srv := testServer(t, &mockPipeline{}, newMockUsers())
	u := registerUser(t, srv, "alice")

	w := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/query?q=hi&limit=zero", u.ID), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "model failure", err: fmt.Errorf("embed: %w", embed.ErrModel), want: http.StatusBadGateway},
		{name: "store failure", err: fmt.Errorf("query: %w", vecstore.ErrStore), want: http.StatusServiceUnavailable},
		{name: "unknown failure", err: fmt.Errorf("wat"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, &mockPipeline{answerErr: tt.err}, newMockUsers())
			u := registerUser(t, srv, "alice")

			w := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/query?q=hi", u.ID), nil)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}

			var body struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body.Error.Code == "" {
				t.Error("error body missing code")
			}
		})
	}
}
