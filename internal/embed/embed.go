// Package embed wraps a Genkit embedding model behind a batch-oriented,
// lazily-initialized client.
//
// The embedding backend is expensive to set up (provider plugin registration,
// remote model lookup), so the Client initializes it once on first use and
// reuses it for every call. A failed initialization is not cached: the next
// call retries it.
//
// The client is text-only. There is no multimodal entry point, so unsupported
// inputs cannot slip zero vectors into the index.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/firebase/genkit/go/ai"
)

// ErrModel indicates the embedding backend failed. Batches fail atomically:
// no partial results are ever returned alongside ErrModel.
var ErrModel = errors.New("embedding model failure")

// InitFunc produces the embedding backend on first use.
type InitFunc func(ctx context.Context) (ai.Embedder, error)

// Client converts batches of text into embedding vectors.
// Safe for concurrent use; ai.Embedder implementations are safe for
// concurrent inference, and initialization is serialized internally.
type Client struct {
	mu       sync.Mutex
	embedder ai.Embedder
	init     InitFunc
	logger   *slog.Logger
}

// New creates a Client around an already-initialized embedder.
func New(embedder ai.Embedder, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{embedder: embedder, logger: logger}
}

// NewLazy creates a Client that defers backend initialization to the first
// Embed call. init is invoked at most once per call until it succeeds; after
// the first success the backend is reused.
func NewLazy(init InitFunc, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{init: init, logger: logger}
}

// Embed converts texts into one vector per input, preserving order.
// An empty input returns an empty result without touching the backend.
// Any backend failure aborts the whole batch with an error wrapping ErrModel.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embedder, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrModel, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at position %d", ErrModel, i)
		}
		vectors[i] = emb.Embedding
	}

	return vectors, nil
}

// ensure returns the backend, initializing it if needed. Initialization
// errors are returned without being cached so later calls can retry.
func (c *Client) ensure(ctx context.Context) (ai.Embedder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.embedder != nil {
		return c.embedder, nil
	}
	if c.init == nil {
		return nil, fmt.Errorf("%w: no embedder configured", ErrModel)
	}

	embedder, err := c.init(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: initializing embedder: %v", ErrModel, err)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: initializer returned no embedder", ErrModel)
	}

	c.embedder = embedder
	c.logger.Debug("embedding backend initialized", "embedder", embedder.Name())
	return embedder, nil
}
