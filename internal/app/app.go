// Package app assembles the application: configuration, database, AI
// provider, retrieval pipeline, and HTTP server.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/easyrag/easyrag/internal/api"
	"github.com/easyrag/easyrag/internal/config"
	"github.com/easyrag/easyrag/internal/rag"
	"github.com/easyrag/easyrag/internal/user"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Pool     *pgxpool.Pool
	Pipeline *rag.System
	Users    *user.Store
	Server   *api.Server
}

// Close releases all resources held by the application.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
	return nil
}
