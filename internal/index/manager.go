// Package index maps tenant identifiers to isolated vector collections.
//
// Each tenant owns exactly one collection, named deterministically from the
// tenant id. Collections are created lazily on first access and live for the
// lifetime of the store; the manager never deletes them.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/google/uuid"

	"github.com/easyrag/easyrag/internal/vecstore"
)

var (
	// ErrDimensionMismatch indicates a vector does not match the configured
	// dimensionality. This is a configuration fault, never retried.
	ErrDimensionMismatch = errors.New("vector dimensionality mismatch")

	// ErrInvalidTenant indicates the tenant identifier cannot form a
	// collection name.
	ErrInvalidTenant = errors.New("invalid tenant identifier")

	// ErrBatchMismatch indicates vectors and payloads differ in length.
	ErrBatchMismatch = errors.New("vectors and payloads length mismatch")
)

// tenantRe constrains tenant ids so the derived collection name stays a valid
// store identifier. 52 characters leaves room for the user_/_kb wrapping
// inside PostgreSQL's 63-byte identifier limit.
var tenantRe = regexp.MustCompile(`^[a-z0-9_]{1,52}$`)

// Manager owns the tenant-to-collection mapping for one store.
// Safe for concurrent use: first-access creation per tenant is serialized so
// racing requests create a collection exactly once.
type Manager struct {
	store  vecstore.Store
	dim    int
	logger *slog.Logger

	mu    sync.Mutex
	known map[string]struct{} // collections confirmed to exist
}

// New creates a Manager over store with the deployment's fixed vector
// dimensionality.
func New(store vecstore.Store, dim int, logger *slog.Logger) (*Manager, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimensionality must be positive, got %d", ErrDimensionMismatch, dim)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		dim:    dim,
		logger: logger,
		known:  make(map[string]struct{}),
	}, nil
}

// CollectionName returns the deterministic collection name for a tenant.
func CollectionName(tenant string) (string, error) {
	if !tenantRe.MatchString(tenant) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTenant, tenant)
	}
	return "user_" + tenant + "_kb", nil
}

// Ensure makes the tenant's collection exist and returns its name.
// Idempotent; concurrent first access from the same tenant is safe because
// creation is serialized here and the store treats "already exists" as
// success for races across processes.
func (m *Manager) Ensure(ctx context.Context, tenant string) (string, error) {
	name, err := CollectionName(tenant)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.known[name]; ok {
		return name, nil
	}

	if err := m.store.CreateCollection(ctx, name, m.dim, vecstore.MetricCosine); err != nil {
		return "", err
	}
	m.known[name] = struct{}{}

	m.logger.Debug("tenant collection ensured", "tenant", tenant, "collection", name)
	return name, nil
}

// Upsert writes one batch of records into the tenant's collection, creating
// it if needed. Every vector must have exactly the configured number of
// components; record ids are freshly generated and carry no external
// meaning.
func (m *Manager) Upsert(ctx context.Context, tenant string, vectors [][]float32, payloads []vecstore.Payload) error {
	if len(vectors) != len(payloads) {
		return fmt.Errorf("%w: %d vectors, %d payloads", ErrBatchMismatch, len(vectors), len(payloads))
	}
	if err := m.checkVectors(vectors); err != nil {
		return err
	}
	if len(vectors) == 0 {
		return nil
	}

	name, err := m.Ensure(ctx, tenant)
	if err != nil {
		return err
	}

	records := make([]vecstore.Record, len(vectors))
	for i := range vectors {
		records[i] = vecstore.Record{
			ID:      uuid.NewString(),
			Vector:  vectors[i],
			Payload: payloads[i],
		}
	}

	return m.store.Upsert(ctx, name, records)
}

// Search returns up to limit results from the tenant's collection, ranked by
// descending similarity. A tenant with no collection or no records yields an
// empty result.
func (m *Manager) Search(ctx context.Context, tenant string, vector []float32, limit int) ([]vecstore.Result, error) {
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query vector has %d components, want %d", ErrDimensionMismatch, len(vector), m.dim)
	}

	name, err := CollectionName(tenant)
	if err != nil {
		return nil, err
	}

	return m.store.Query(ctx, name, vector, limit)
}

// Dimension returns the fixed vector dimensionality.
func (m *Manager) Dimension() int { return m.dim }

func (m *Manager) checkVectors(vectors [][]float32) error {
	for i, vec := range vectors {
		if len(vec) != m.dim {
			return fmt.Errorf("%w: vector %d has %d components, want %d", ErrDimensionMismatch, i, len(vec), m.dim)
		}
	}
	return nil
}
