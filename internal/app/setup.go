package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	"github.com/easyrag/easyrag/db"
	httpapi "github.com/easyrag/easyrag/internal/api"
	"github.com/easyrag/easyrag/internal/chunk"
	"github.com/easyrag/easyrag/internal/config"
	"github.com/easyrag/easyrag/internal/database"
	"github.com/easyrag/easyrag/internal/embed"
	"github.com/easyrag/easyrag/internal/index"
	"github.com/easyrag/easyrag/internal/llm"
	"github.com/easyrag/easyrag/internal/rag"
	"github.com/easyrag/easyrag/internal/user"
	"github.com/easyrag/easyrag/internal/vecstore"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	// The embedder is resolved lazily so a provider backend that is down at
	// startup (typically Ollama) only fails the requests that need it.
	embedClient := embed.NewLazy(func(context.Context) (ai.Embedder, error) {
		return provideEmbedder(g, cfg)
	}, logger)

	chunker, err := chunk.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("creating chunker: %w", err)
	}

	store := vecstore.NewPostgres(pool, logger)
	manager, err := index.New(store, cfg.EmbeddingDimension, logger)
	if err != nil {
		return nil, fmt.Errorf("creating index manager: %w", err)
	}

	generator := llm.New(g, cfg.FullModelName())
	a.Pipeline = rag.New(chunker, embedClient, manager, generator, logger)
	a.Users = user.New(pool, logger)

	srv, err := httpapi.NewServer(httpapi.ServerConfig{
		Logger:      logger,
		Pipeline:    a.Pipeline,
		Users:       a.Users,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
		RateBurst:   cfg.RateBurst,
		QueryLimit:  cfg.ContextLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.Server = srv

	logger.Info("application initialized",
		"provider", cfg.Provider,
		"model", cfg.FullModelName(),
		"embedder", cfg.EmbedderModel,
		"dimension", cfg.EmbeddingDimension,
	)
	return a, nil
}

// provideGenkit initializes Genkit with the configured AI provider plugin.
// Supports gemini (default), ollama, and openai providers.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized genkit with openai provider", "model", cfg.ModelName)

	default: // "gemini"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the AI provider plugin.
// Each provider registers embedders differently:
//   - gemini: GoogleAIEmbedder(g, modelName)
//   - ollama: registered in provideGenkit, keyed by server address
//   - openai: auto-registered in Init(), looked up by model name
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) (ai.Embedder, error) {
	var embedder ai.Embedder

	switch cfg.Provider {
	case config.ProviderOllama:
		embedder = ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		embedder = genkit.LookupEmbedder(g, api.NewName(config.ProviderOpenAI, cfg.EmbedderModel))
	default: // "gemini"
		embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}

	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	return embedder, nil
}
