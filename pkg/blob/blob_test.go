package blob

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemStorePut(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), "avatars/u-42.jpg", []byte("jpegdata"), "image/jpeg")
	require.NoError(t, err)

	data, err := os.ReadFile(ref)
	require.NoError(t, err)
	assert.Equal(t, "jpegdata", string(data))
}

func TestFilesystemStorePutOverwrites(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Put(ctx, "avatars/u-42.jpg", []byte("old"), "image/jpeg")
	require.NoError(t, err)
	ref, err := store.Put(ctx, "avatars/u-42.jpg", []byte("new"), "image/jpeg")
	require.NoError(t, err)

	data, err := os.ReadFile(ref)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestFilesystemStoreSanitizesKey(t *testing.T) {
	root := t.TempDir()
	store, err := NewFilesystemStore(root)
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), "../../etc/evil", []byte("x"), "text/plain")
	require.NoError(t, err)
	assert.Contains(t, ref, root)
}
