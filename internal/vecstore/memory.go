package vecstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process Store used by tests and local development.
// Safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	dim     int
	metric  Metric
	records []Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

// Collections lists collection names in sorted order.
func (m *Memory) Collections(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CreateCollection creates the named collection; an existing collection is
// success, not an error.
func (m *Memory) CreateCollection(_ context.Context, name string, dim int, metric Metric) error {
	if err := validCollectionName(name); err != nil {
		return err
	}
	if dim <= 0 {
		return fmt.Errorf("%w: collection dimensionality must be positive, got %d", ErrStore, dim)
	}
	if metric != MetricCosine {
		return fmt.Errorf("%w: unsupported metric %q", ErrStore, metric)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.collections[name]; exists {
		return nil
	}
	m.collections[name] = &memCollection{dim: dim, metric: metric}
	return nil
}

// Upsert appends or replaces records in one atomic step. All vectors are
// validated before anything is written, so a bad record leaves the
// collection untouched.
func (m *Memory) Upsert(_ context.Context, collection string, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	col, exists := m.collections[collection]
	if !exists {
		return fmt.Errorf("%w: collection %q does not exist", ErrStore, collection)
	}

	for _, rec := range records {
		if len(rec.Vector) != col.dim {
			return fmt.Errorf("%w: record %q has %d components, collection %q expects %d",
				ErrStore, rec.ID, len(rec.Vector), collection, col.dim)
		}
	}

	for _, rec := range records {
		replaced := false
		for i := range col.records {
			if col.records[i].ID == rec.ID {
				col.records[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			col.records = append(col.records, rec)
		}
	}
	return nil
}

// Query ranks the collection's records by cosine similarity to vector.
// A missing collection yields an empty result.
func (m *Memory) Query(_ context.Context, collection string, vector []float32, limit int) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, exists := m.collections[collection]
	if !exists {
		return nil, nil
	}
	if len(vector) != col.dim {
		return nil, fmt.Errorf("%w: query vector has %d components, collection %q expects %d",
			ErrStore, len(vector), collection, col.dim)
	}
	if limit <= 0 {
		return nil, nil
	}

	results := make([]Result, 0, len(col.records))
	for _, rec := range col.records {
		results = append(results, Result{
			Text:    rec.Payload.Text,
			Score:   cosineSimilarity(vector, rec.Vector),
			Payload: rec.Payload,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// cosineSimilarity returns the cosine of the angle between a and b.
// Zero-magnitude vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
