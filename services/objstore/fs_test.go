package objstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(root, "lesson-pdfs", "http://localhost:8000/storage/")
	require.NoError(t, err)
	ctx := context.Background()

	key := "lsn-1/1700000000000.pdf"
	require.NoError(t, store.Put(ctx, key, strings.NewReader("%PDF-1.4"), 8, "application/pdf"))

	data, err := os.ReadFile(filepath.Join(root, "lesson-pdfs", "lsn-1", "1700000000000.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	url := store.PublicURL(key)
	assert.Equal(t, "http://localhost:8000/storage/lesson-pdfs/lsn-1/1700000000000.pdf", url)
	assert.Equal(t, key, store.KeyFromURL(url))
	assert.Empty(t, store.KeyFromURL("https://elsewhere.com/lesson-pdfs/lsn-1/1700000000000.pdf"))

	require.NoError(t, store.Delete(ctx, key, "missing/key.pdf"))
	_, err = os.Stat(filepath.Join(root, "lesson-pdfs", "lsn-1", "1700000000000.pdf"))
	assert.True(t, os.IsNotExist(err))
}

func TestFSStore_invalidKey(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), "b", "http://localhost")
	require.NoError(t, err)

	for _, key := range []string{"", "/", "../escape.pdf", "a/../../b"} {
		assert.Error(t, store.Put(context.Background(), key, strings.NewReader("x"), 1, "text/plain"), key)
	}
}

func TestFSStore_cancelledPut(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(root, "b", "http://localhost")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, store.Put(ctx, "k.pdf", strings.NewReader("data"), 4, "application/pdf"))

	_, err = os.Stat(filepath.Join(root, "b", "k.pdf"))
	assert.True(t, os.IsNotExist(err))
}
