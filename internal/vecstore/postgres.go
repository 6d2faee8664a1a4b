package vecstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Postgres is the production Store, backed by PostgreSQL with the pgvector
// extension. Every collection maps to its own table, so isolation between
// collections is enforced by the database itself rather than by a filter
// column that a bad query could forget.
//
// A registry table (rag_collections, created by migrations) tracks
// collection names and their configured dimensionality and metric.
//
// Safe for concurrent use; pgxpool handles connection concurrency.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a Store on the given connection pool. The pool must
// have pgvector types registered (see database.Open).
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

// Collections lists registered collection names.
func (p *Postgres) Collections(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT name FROM rag_collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing collections: %v", ErrStore, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scanning collection name: %v", ErrStore, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing collections: %v", ErrStore, err)
	}
	return names, nil
}

// CreateCollection registers the collection and creates its table and cosine
// index. Idempotent: IF NOT EXISTS plus ON CONFLICT DO NOTHING make a lost
// creation race indistinguishable from a successful create, which is exactly
// the protocol first-access racing tenants need.
func (p *Postgres) CreateCollection(ctx context.Context, name string, dim int, metric Metric) error {
	if err := validCollectionName(name); err != nil {
		return err
	}
	if dim <= 0 {
		return fmt.Errorf("%w: collection dimensionality must be positive, got %d", ErrStore, dim)
	}
	if metric != MetricCosine {
		return fmt.Errorf("%w: unsupported metric %q", ErrStore, metric)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", ErrStore, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	table := pgx.Identifier{name}.Sanitize()
	index := pgx.Identifier{name + "_embedding_idx"}.Sanitize()

	// Identifier and dimension are validated above; they are the only values
	// interpolated into DDL (placeholders are not allowed there).
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id UUID PRIMARY KEY,
		embedding VECTOR(%d) NOT NULL,
		content TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		extra JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, table, dim)
	if _, err := tx.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("%w: creating collection table %q: %v", ErrStore, name, err)
	}

	createIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`, index, table)
	if _, err := tx.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("%w: creating vector index for %q: %v", ErrStore, name, err)
	}

	const register = `INSERT INTO rag_collections (name, dim, metric) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`
	if _, err := tx.Exec(ctx, register, name, dim, string(metric)); err != nil {
		return fmt.Errorf("%w: registering collection %q: %v", ErrStore, name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: committing collection %q: %v", ErrStore, name, err)
	}

	p.logger.Debug("collection ensured", "collection", name, "dim", dim, "metric", metric)
	return nil
}

// Upsert writes all records in one transaction. A failure rolls the whole
// batch back, so partial ingests never become visible.
func (p *Postgres) Upsert(ctx context.Context, collection string, records []Record) error {
	if err := validCollectionName(collection); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", ErrStore, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	table := pgx.Identifier{collection}.Sanitize()
	stmt := fmt.Sprintf(`INSERT INTO %s (id, embedding, content, source, extra)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			content = EXCLUDED.content,
			source = EXCLUDED.source,
			extra = EXCLUDED.extra`, table)

	batch := &pgx.Batch{}
	for _, rec := range records {
		extra, err := json.Marshal(rec.Payload.Extra)
		if err != nil {
			return fmt.Errorf("%w: marshaling extra payload for %q: %v", ErrStore, rec.ID, err)
		}
		batch.Queue(stmt, rec.ID, pgvector.NewVector(rec.Vector), rec.Payload.Text, rec.Payload.Source, extra)
	}

	br := tx.SendBatch(ctx, batch)
	for range records {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("%w: writing batch to %q: %v", ErrStore, collection, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("%w: closing batch for %q: %v", ErrStore, collection, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: committing batch to %q: %v", ErrStore, collection, err)
	}

	p.logger.Debug("records upserted", "collection", collection, "count", len(records))
	return nil
}

// Query returns the limit nearest records by cosine similarity. An
// unregistered collection yields an empty result, not an error.
func (p *Postgres) Query(ctx context.Context, collection string, vector []float32, limit int) ([]Result, error) {
	if err := validCollectionName(collection); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	var exists bool
	const check = `SELECT EXISTS (SELECT 1 FROM rag_collections WHERE name = $1)`
	if err := p.pool.QueryRow(ctx, check, collection).Scan(&exists); err != nil {
		return nil, fmt.Errorf("%w: checking collection %q: %v", ErrStore, collection, err)
	}
	if !exists {
		return nil, nil
	}

	table := pgx.Identifier{collection}.Sanitize()
	query := fmt.Sprintf(`SELECT content, source, extra, 1 - (embedding <=> $1) AS similarity
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, table)

	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: querying %q: %v", ErrStore, collection, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			res   Result
			extra []byte
		)
		if err := rows.Scan(&res.Payload.Text, &res.Payload.Source, &extra, &res.Score); err != nil {
			return nil, fmt.Errorf("%w: scanning result from %q: %v", ErrStore, collection, err)
		}
		if len(extra) > 0 && string(extra) != "null" {
			if err := json.Unmarshal(extra, &res.Payload.Extra); err != nil {
				p.logger.Warn("dropping unreadable extra payload", "collection", collection, "error", err)
			}
		}
		res.Text = res.Payload.Text
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: querying %q: %v", ErrStore, collection, err)
	}
	return results, nil
}
