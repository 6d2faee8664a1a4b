//go:build integration
// +build integration

package vecstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyrag/easyrag/internal/log"
	"github.com/easyrag/easyrag/internal/testutil"
)

func setupPostgresStore(t *testing.T) *Postgres {
	t.Helper()
	tdb := testutil.SetupTestDB(t)
	return NewPostgres(tdb.Pool, log.NewNop())
}

func TestPostgres_CreateCollection_Integration(t *testing.T) {
	ctx := context.Background()
	store := setupPostgresStore(t)

	require.NoError(t, store.CreateCollection(ctx, "user_1_kb", 3, MetricCosine))

	// Creating the same collection again is a no-op, not an error.
	require.NoError(t, store.CreateCollection(ctx, "user_1_kb", 3, MetricCosine))

	names, err := store.Collections(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "user_1_kb")
}

func TestPostgres_CreateCollection_RejectsBadName_Integration(t *testing.T) {
	ctx := context.Background()
	store := setupPostgresStore(t)

	err := store.CreateCollection(ctx, `bad"; DROP TABLE rag_collections; --`, 3, MetricCosine)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)
}

func TestPostgres_UpsertQuery_Integration(t *testing.T) {
	ctx := context.Background()
	store := setupPostgresStore(t)

	require.NoError(t, store.CreateCollection(ctx, "user_1_kb", 3, MetricCosine))

	records := []Record{
		{ID: uuid.NewString(), Vector: []float32{1, 0, 0}, Payload: Payload{Text: "red", Source: "colors.txt"}},
		{ID: uuid.NewString(), Vector: []float32{0, 1, 0}, Payload: Payload{Text: "green", Source: "colors.txt"}},
		{ID: uuid.NewString(), Vector: []float32{0.9, 0.1, 0}, Payload: Payload{Text: "maroon", Source: "shades.txt"}},
	}
	require.NoError(t, store.Upsert(ctx, "user_1_kb", records))

	results, err := store.Query(ctx, "user_1_kb", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Ranked by descending cosine similarity.
	assert.Equal(t, "red", results[0].Text)
	assert.Equal(t, "maroon", results[1].Text)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-4)
	assert.Equal(t, "colors.txt", results[0].Payload.Source)
}

func TestPostgres_UpsertReplacesByID_Integration(t *testing.T) {
	ctx := context.Background()
	store := setupPostgresStore(t)

	require.NoError(t, store.CreateCollection(ctx, "user_1_kb", 3, MetricCosine))

	id := uuid.NewString()
	first := []Record{{ID: id, Vector: []float32{1, 0, 0}, Payload: Payload{Text: "before"}}}
	require.NoError(t, store.Upsert(ctx, "user_1_kb", first))

	second := []Record{{ID: id, Vector: []float32{1, 0, 0}, Payload: Payload{Text: "after"}}}
	require.NoError(t, store.Upsert(ctx, "user_1_kb", second))

	results, err := store.Query(ctx, "user_1_kb", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "after", results[0].Text)
}

func TestPostgres_QueryMissingCollection_Integration(t *testing.T) {
	ctx := context.Background()
	store := setupPostgresStore(t)

	results, err := store.Query(ctx, "user_999_kb", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPostgres_CollectionIsolation_Integration(t *testing.T) {
	ctx := context.Background()
	store := setupPostgresStore(t)

	require.NoError(t, store.CreateCollection(ctx, "user_1_kb", 3, MetricCosine))
	require.NoError(t, store.CreateCollection(ctx, "user_2_kb", 3, MetricCosine))

	require.NoError(t, store.Upsert(ctx, "user_1_kb", []Record{
		{ID: uuid.NewString(), Vector: []float32{1, 0, 0}, Payload: Payload{Text: "alice's note"}},
	}))

	results, err := store.Query(ctx, "user_2_kb", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results, "tenant collections must not leak into each other")
}
