// Package vecstore defines the vector store consumed by the retrieval
// pipeline and provides two implementations: a PostgreSQL/pgvector store for
// production and an in-memory store for tests and local development.
//
// A store holds named collections. Each collection is an isolated namespace
// of vector records with a fixed dimensionality and similarity metric;
// nothing inside the store ever crosses collection boundaries.
package vecstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrStore indicates a vector store operation failed. Callers receive it
// unchanged; no retries happen at this layer.
var ErrStore = errors.New("vector store failure")

// Metric identifies the similarity metric a collection is configured with.
type Metric string

// MetricCosine ranks records by cosine similarity (higher = more similar).
const MetricCosine Metric = "cosine"

// Payload is the data stored alongside a vector. The shape is closed on
// purpose: new fields are added here, not smuggled through an open map.
// Extra carries optional caller-defined attributes that play no role in
// ranking.
type Payload struct {
	Text   string            `json:"text"`
	Source string            `json:"source"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// Record is a single indexed entry. The ID is assigned at insertion time and
// has no meaning outside the store.
type Record struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Result is one ranked search hit.
type Result struct {
	Text    string
	Score   float32
	Payload Payload
}

// Store is the collection-scoped vector storage consumed by the tenant index
// manager. Implementations must treat creating an existing collection as
// success and querying a missing collection as an empty result, never as an
// error.
type Store interface {
	// Collections lists the names of all existing collections.
	Collections(ctx context.Context) ([]string, error)

	// CreateCollection creates a collection with the given dimensionality
	// and metric. Idempotent: an existing collection with the same name is
	// left untouched and reported as success.
	CreateCollection(ctx context.Context, name string, dim int, metric Metric) error

	// Upsert writes all records into the collection as one batch. Either
	// every record is durably written or none is.
	Upsert(ctx context.Context, collection string, records []Record) error

	// Query returns up to limit records ranked by descending similarity to
	// vector. A missing or empty collection yields an empty result.
	Query(ctx context.Context, collection string, vector []float32, limit int) ([]Result, error)
}

// collectionNameRe constrains collection names to what both backends accept
// as identifiers (PostgreSQL limits identifiers to 63 bytes).
var collectionNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// validCollectionName rejects names that cannot serve as store identifiers.
func validCollectionName(name string) error {
	if !collectionNameRe.MatchString(name) {
		return fmt.Errorf("%w: invalid collection name %q", ErrStore, name)
	}
	return nil
}
