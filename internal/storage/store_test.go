package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestStoreContract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := store.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, "k", "v1"))
			require.NoError(t, store.Set(ctx, "k", "v2"))
			v, ok, err := store.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v2", v)

			require.NoError(t, store.Delete(ctx, "k"))
			require.NoError(t, store.Delete(ctx, "k"))
			_, ok, err = store.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestSQLitePersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "client.db")

	first, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, NewHashHistory(first, 4).Put(ctx, "p1", "abc"))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	hash, ok, err := NewHashHistory(second, 4).Get(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", hash)
}

func TestHashHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	history := NewHashHistory(store, 2)

	_, ok, err := history.Get(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, history.Put(ctx, "p1", "h1"))
	require.NoError(t, history.Put(ctx, "p2", "h2"))
	require.NoError(t, history.Put(ctx, "p3", "h3"))

	// p1 was evicted from the cache but is still in the store.
	hash, ok, err := history.Get(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "h1", hash)

	raw, ok, _ := store.Get(ctx, "manifest-hash:p2")
	assert.True(t, ok)
	assert.Equal(t, "h2", raw)

	require.NoError(t, history.Forget(ctx, "p2"))
	_, ok, err = history.Get(ctx, "p2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFailureSlot(t *testing.T) {
	ctx := context.Background()
	slot := NewFailureSlot(NewMemory())

	rec, err := slot.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	want := FailureRecord{
		ProjectID:       "p1",
		Kind:            "missing-dependency",
		UserMessage:     `Module "lodash" is not installed.`,
		SuggestedAction: `Add "lodash" to package.json dependencies.`,
		Raw:             "Cannot find module 'lodash'",
		At:              time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, slot.Save(ctx, want))

	got, err := slot.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	require.NoError(t, slot.Clear(ctx))
	rec, err = slot.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)
}
