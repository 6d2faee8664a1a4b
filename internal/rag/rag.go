// Package rag orchestrates the retrieval pipeline: chunk, embed, index on
// ingest; embed, search, assemble context, generate on query.
//
// The package owns no I/O of its own. It composes the chunker, the embedding
// client, the tenant index manager, and a generative-text provider, and all
// failures from those collaborators bubble up unchanged. The single
// deliberate non-error is a query with no retrievable context, which yields
// a fixed response without invoking the generator.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/easyrag/easyrag/internal/vecstore"
)

// NoRelevantInformation is the fixed answer for queries with no retrievable
// context. It is a normal outcome, not a failure.
const NoRelevantInformation = "No relevant information found in your knowledge base."

// systemPrompt instructs the generator to stay inside the retrieved context.
const systemPrompt = "You are a helpful assistant. Use the provided context to answer the user's question. " +
	"If the answer is not in the context, say you don't know based on the knowledge base."

// contextDelimiter separates ranked chunks in the assembled context.
const contextDelimiter = "\n---\n"

// DefaultContextLimit is how many ranked chunks feed the generator unless
// overridden with WithContextLimit.
const DefaultContextLimit = 5

// Chunker splits raw text into retrievable units.
type Chunker interface {
	Split(text string) []string
}

// Embedder converts a batch of texts into one vector per text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the per-tenant vector index consumed by the pipeline.
type Index interface {
	Upsert(ctx context.Context, tenant string, vectors [][]float32, payloads []vecstore.Payload) error
	Search(ctx context.Context, tenant string, vector []float32, limit int) ([]vecstore.Result, error)
}

// Generator produces free-text answers from a system prompt and a user
// prompt. The call blocks until the backend responds; cancellation arrives
// through ctx.
type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Answer is the result of a query: the generated (or fixed) answer text plus
// the source label of every context chunk in ranked order. Sources are not
// deduplicated.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Option configures a single query.
type Option func(*queryConfig)

type queryConfig struct {
	contextLimit int
}

// WithContextLimit overrides how many ranked chunks are retrieved and fed to
// the generator. Values below 1 fall back to the default.
func WithContextLimit(n int) Option {
	return func(c *queryConfig) {
		if n > 0 {
			c.contextLimit = n
		}
	}
}

// System is the retrieval pipeline exposed to the routing layer.
// Safe for concurrent use; requests share only the embedding client and the
// backing store, both of which handle their own synchronization.
type System struct {
	chunker   Chunker
	embedder  Embedder
	index     Index
	generator Generator
	logger    *slog.Logger
}

// New assembles the pipeline from its collaborators.
func New(chunker Chunker, embedder Embedder, index Index, generator Generator, logger *slog.Logger) *System {
	if logger == nil {
		logger = slog.Default()
	}
	return &System{
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		generator: generator,
		logger:    logger,
	}
}

// Ingest chunks raw text, embeds every chunk in one batch, and indexes the
// records under the tenant with the given source label. Returns the number
// of chunks indexed. Zero chunks short-circuits without touching the index.
//
// There is no partial success: an embedding or index failure aborts the
// whole document, and the index write is a single batch.
func (s *System) Ingest(ctx context.Context, tenant, text, source string) (int, error) {
	chunks := s.chunker.Split(text)
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	payloads := make([]vecstore.Payload, len(chunks))
	for i, chunk := range chunks {
		payloads[i] = vecstore.Payload{Text: chunk, Source: source}
	}

	if err := s.index.Upsert(ctx, tenant, vectors, payloads); err != nil {
		return 0, fmt.Errorf("indexing %d chunks: %w", len(chunks), err)
	}

	s.logger.Debug("document ingested",
		"tenant", tenant,
		"source", source,
		"chunks", len(chunks),
	)
	return len(chunks), nil
}

// Answer retrieves the tenant's most relevant chunks for the question and
// asks the generator to answer from them. Without any retrieved context it
// returns NoRelevantInformation and never calls the generator.
func (s *System) Answer(ctx context.Context, tenant, question string, opts ...Option) (Answer, error) {
	cfg := queryConfig{contextLimit: DefaultContextLimit}
	for _, opt := range opts {
		opt(&cfg)
	}

	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return Answer{}, fmt.Errorf("embedding question: %w", err)
	}
	if len(vectors) != 1 {
		return Answer{}, fmt.Errorf("embedding question: got %d vectors, want 1", len(vectors))
	}

	results, err := s.index.Search(ctx, tenant, vectors[0], cfg.contextLimit)
	if err != nil {
		return Answer{}, fmt.Errorf("searching index: %w", err)
	}

	if len(results) == 0 {
		s.logger.Debug("no relevant context", "tenant", tenant)
		return Answer{Answer: NoRelevantInformation}, nil
	}

	texts := make([]string, len(results))
	sources := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Text
		sources[i] = res.Payload.Source
	}

	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", strings.Join(texts, contextDelimiter), question)

	answer, err := s.generator.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}

	s.logger.Debug("query answered",
		"tenant", tenant,
		"context_chunks", len(results),
		"top_score", results[0].Score,
	)
	return Answer{Answer: answer, Sources: sources}, nil
}
