package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/campus-orders/internal/port"
)

func TestDiskImageStore_Upload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskImageStore(dir, "/uploads/")
	require.NoError(t, err)

	url, err := store.Upload(context.Background(), []byte("png-bytes"), "image/PNG")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	_, err = store.Upload(context.Background(), []byte("x"), "application/pdf")
	assert.ErrorIs(t, err, port.ErrUnsupportedImage)
}

func TestDiskImageStore_Open(t *testing.T) {
	store, err := NewDiskImageStore(t.TempDir(), "/uploads")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := store.Upload(ctx, []byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)

	f, err := store.Open(ctx, url)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "jpeg-bytes", string(data))

	for _, foreign := range []string{
		"https://img.example.com/a.png",
		"/uploads/missing.png",
		"/uploads/../image_store.go",
		"/uploads/",
	} {
		_, err := store.Open(ctx, foreign)
		assert.ErrorIs(t, err, port.ErrNotFound, foreign)
	}
}
