package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/easyrag/easyrag/internal/rag"
	"github.com/easyrag/easyrag/internal/user"
)

// Pipeline is the retrieval-augmented generation surface the API exposes.
// Satisfied by *rag.System.
type Pipeline interface {
	Ingest(ctx context.Context, tenant, text, source string) (int, error)
	Answer(ctx context.Context, tenant, question string, opts ...rag.Option) (rag.Answer, error)
}

// UserStore is the account and document bookkeeping the API depends on.
// Satisfied by *user.Store.
type UserStore interface {
	Register(ctx context.Context, username string) (user.User, error)
	Get(ctx context.Context, id int64) (user.User, error)
	AddDocument(ctx context.Context, userID int64, filename string) (user.Document, error)
	ListDocuments(ctx context.Context, userID int64) ([]user.Document, error)
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	Pipeline    Pipeline  // Required
	Users       UserStore // Required
	CORSOrigins []string  // Allowed origins for CORS
	TrustProxy  bool      // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	RateBurst   int       // Rate limiter burst size per IP (0 = default 60)
	MaxUpload   int64     // Upload size cap in bytes (0 = default 10 MiB)
	QueryLimit  int       // Default context chunks per query (0 = pipeline default)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

const defaultMaxUpload = 10 << 20

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg.Users == nil {
		return nil, errors.New("user store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxUpload := cfg.MaxUpload
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}

	uh := &userHandler{users: cfg.Users, logger: logger}
	dh := &documentHandler{
		users:     cfg.Users,
		pipeline:  cfg.Pipeline,
		maxUpload: maxUpload,
		logger:    logger,
	}
	qh := &queryHandler{
		users:        cfg.Users,
		pipeline:     cfg.Pipeline,
		defaultLimit: cfg.QueryLimit,
		logger:       logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/register", uh.register)
	mux.HandleFunc("POST /api/v1/users/{id}/documents", dh.upload)
	mux.HandleFunc("GET /api/v1/users/{id}/documents", dh.list)
	mux.HandleFunc("GET /api/v1/users/{id}/query", qh.query)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst, cfg.TrustProxy)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	// CORS must be before RateLimit so preflight OPTIONS gets proper CORS headers.
	var handler http.Handler = mux
	handler = rl.middleware(logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /healthz", health(logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
