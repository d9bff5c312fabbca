package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutWritesAndReplaces(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	key := "edfi_api/base_edfi_schools/source_key=2024/extract_type=records/000000001.json"

	loc, err := store.Put(ctx, key, []byte("first\n"), core.PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(store.Root(), key)), loc)

	_, err = store.Put(ctx, key, []byte("second\n"), core.PutOptions{})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(store.Root(), key))
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(filepath.Join(store.Root(), key)))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestPutEmptyBody(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "a/empty.json", nil, core.PutOptions{})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(store.Root(), "a", "empty.json"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestPutRespectsCancellation(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Put(ctx, "a.json", []byte("x"), core.PutOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewStoreRequiresDirectory(t *testing.T) {
	_, err := NewStore("")
	assert.Error(t, err)
}
