//go:build integration
// +build integration

package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyrag/easyrag/internal/log"
	"github.com/easyrag/easyrag/internal/testutil"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	tdb := testutil.SetupTestDB(t)
	return New(tdb.Pool, log.NewNop())
}

func TestStore_Register_Integration(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	u, err := store.Register(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.NotZero(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	// Re-registering the same username returns the existing account.
	again, err := store.Register(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	other, err := store.Register(ctx, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, u.ID, other.ID)
}

func TestStore_Get_Integration(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	created, err := store.Register(ctx, "alice")
	require.NoError(t, err)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "alice", got.Username)

	_, err = store.Get(ctx, 99999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Documents_Integration(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	u, err := store.Register(ctx, "alice")
	require.NoError(t, err)

	docs, err := store.ListDocuments(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)

	first, err := store.AddDocument(ctx, u.ID, "first.txt")
	require.NoError(t, err)
	assert.Equal(t, u.ID, first.UserID)

	second, err := store.AddDocument(ctx, u.ID, "second.txt")
	require.NoError(t, err)

	docs, err = store.ListDocuments(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	// Newest first.
	assert.Equal(t, second.ID, docs[0].ID)
	assert.Equal(t, first.ID, docs[1].ID)
}
