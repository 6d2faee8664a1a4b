package index

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/easyrag/easyrag/internal/log"
	"github.com/easyrag/easyrag/internal/vecstore"
)

// countingStore wraps a Memory store and counts CreateCollection calls.
type countingStore struct {
	*vecstore.Memory

	mu      sync.Mutex
	creates map[string]int
}

func newCountingStore() *countingStore {
	return &countingStore{Memory: vecstore.NewMemory(), creates: make(map[string]int)}
}

func (c *countingStore) CreateCollection(ctx context.Context, name string, dim int, metric vecstore.Metric) error {
	c.mu.Lock()
	c.creates[name]++
	c.mu.Unlock()
	return c.Memory.CreateCollection(ctx, name, dim, metric)
}

func TestCollectionName(t *testing.T) {
	tests := []struct {
		tenant  string
		want    string
		wantErr bool
	}{
		{"1", "user_1_kb", false},
		{"alice_dev", "user_alice_dev_kb", false},
		{"", "", true},
		{"Alice", "", true},
		{"a-b", "", true},
		{"a b", "", true},
	}
	for _, tt := range tests {
		got, err := CollectionName(tt.tenant)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidTenant) {
				t.Errorf("CollectionName(%q) error = %v, want ErrInvalidTenant", tt.tenant, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("CollectionName(%q): %v", tt.tenant, err)
			continue
		}
		if got != tt.want {
			t.Errorf("CollectionName(%q) = %q, want %q", tt.tenant, got, tt.want)
		}
	}
}

func TestNew_RejectsBadDimension(t *testing.T) {
	_, err := New(vecstore.NewMemory(), 0, log.NewNop())
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("New with dim 0: error = %v, want ErrDimensionMismatch", err)
	}
}

func TestEnsure_CreatesOnceUnderConcurrency(t *testing.T) {
	store := newCountingStore()
	m, err := New(store, 3, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Ensure(context.Background(), "42"); err != nil {
				t.Errorf("Ensure: %v", err)
			}
		}()
	}
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.creates["user_42_kb"] != 1 {
		t.Errorf("CreateCollection called %d times, want 1", store.creates["user_42_kb"])
	}
}

func TestUpsert_LengthMismatchRejected(t *testing.T) {
	m, err := New(vecstore.NewMemory(), 3, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = m.Upsert(context.Background(), "1",
		[][]float32{{1, 0, 0}},
		[]vecstore.Payload{{Text: "a"}, {Text: "b"}})
	if !errors.Is(err, ErrBatchMismatch) {
		t.Errorf("error = %v, want ErrBatchMismatch", err)
	}
}

func TestUpsert_DimensionMismatchRejected(t *testing.T) {
	store := newCountingStore()
	m, err := New(store, 3, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = m.Upsert(context.Background(), "1",
		[][]float32{{1, 0, 0}, {1, 0}},
		[]vecstore.Payload{{Text: "a"}, {Text: "b"}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("error = %v, want ErrDimensionMismatch", err)
	}

	// The mismatch must surface before any store interaction.
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.creates) != 0 {
		t.Errorf("store touched despite dimension mismatch: %v", store.creates)
	}
}

func TestSearch_DimensionMismatchRejected(t *testing.T) {
	m, err := New(vecstore.NewMemory(), 3, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = m.Search(context.Background(), "1", []float32{1, 0}, 5)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("error = %v, want ErrDimensionMismatch", err)
	}
}

func TestSearch_UnknownTenantIsEmpty(t *testing.T) {
	m, err := New(vecstore.NewMemory(), 3, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := m.Search(context.Background(), "nobody", []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty result, got %d", len(results))
	}
}

func TestUpsertSearch_TenantIsolation(t *testing.T) {
	m, err := New(vecstore.NewMemory(), 2, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	// Both tenants ingest the same text.
	for _, tenant := range []string{"alice", "bob"} {
		err := m.Upsert(ctx, tenant,
			[][]float32{{1, 0}},
			[]vecstore.Payload{{Text: "shared secret", Source: tenant + ".txt"}})
		if err != nil {
			t.Fatalf("Upsert(%s): %v", tenant, err)
		}
	}

	for _, tenant := range []string{"alice", "bob"} {
		results, err := m.Search(ctx, tenant, []float32{1, 0}, 10)
		if err != nil {
			t.Fatalf("Search(%s): %v", tenant, err)
		}
		if len(results) != 1 {
			t.Fatalf("tenant %s sees %d records, want exactly its own 1", tenant, len(results))
		}
		if results[0].Payload.Source != tenant+".txt" {
			t.Errorf("tenant %s got record from %q", tenant, results[0].Payload.Source)
		}
	}
}

func TestUpsert_EmptyBatchIsNoop(t *testing.T) {
	store := newCountingStore()
	m, err := New(store, 3, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := m.Upsert(context.Background(), "1", nil, nil); err != nil {
		t.Fatalf("Upsert(empty): %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.creates) != 0 {
		t.Errorf("empty batch should not touch the store, got creates %v", store.creates)
	}
}
