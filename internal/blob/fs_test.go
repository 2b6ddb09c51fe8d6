package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStoreRoundTrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Put(ctx, "abcdef0123456789", []byte("document bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	got, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("document bytes"), got)

	require.NoError(t, store.Delete(ctx, ref))
	_, err = store.Get(ctx, ref)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSStoreFansOutByKeyPrefix(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(root, nil)
	require.NoError(t, err)

	key := "1f2e3d4c-owner-aabbccdd"
	_, err = store.Put(context.Background(), key, []byte("x"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, key[:2], key))
	assert.NoError(t, err)
}

func TestFSStorePutIdempotent(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	ref1, err := store.Put(ctx, "samekey000000000", []byte("same bytes"))
	require.NoError(t, err)
	ref2, err := store.Put(ctx, "samekey000000000", []byte("same bytes"))
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)

	got, err := store.Get(ctx, ref1)
	require.NoError(t, err)
	assert.Equal(t, []byte("same bytes"), got)
}

func TestFSStoreDeleteMissing(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)

	// deleting something already gone must not fail: the reaper may race
	// with itself
	err = store.Delete(context.Background(), "never0000000000a")
	assert.NoError(t, err)
}

func TestFSStoreGetMissing(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "missing000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}
