package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeImageRef(t *testing.T) {
	tests := []struct {
		in   string
		want *string
	}{
		{"", nil},
		{"   ", nil},
		{"https://cdn.example.com/a.jpg", ptr("https://cdn.example.com/a.jpg")},
		{"HTTP://cdn.example.com/a.jpg", ptr("HTTP://cdn.example.com/a.jpg")},
		{"a.jpg", ptr("/uploads/a.jpg")},
		{"/a.jpg", ptr("/uploads/a.jpg")},
		{"uploads/a.jpg", ptr("/uploads/a.jpg")},
		{"///uploads/a.jpg", ptr("/uploads/a.jpg")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeImageRef(tt.in))
		})
	}
}

func TestPublicURL(t *testing.T) {
	assert.Nil(t, PublicURL("https://api.example.com", nil))
	assert.Equal(t, "/uploads/a.jpg", *PublicURL("", ptr("/uploads/a.jpg")))
	assert.Equal(t, "https://api.example.com/uploads/a.jpg", *PublicURL("https://api.example.com/", ptr("/uploads/a.jpg")))
	assert.Equal(t, "https://cdn/x.png", *PublicURL("https://api.example.com", ptr("https://cdn/x.png")))
}

func TestLocalStore_PutAndRelease(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Put(ctx, bytes.NewReader([]byte("png-bytes")), 9, "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, UploadsPrefix))
	assert.True(t, strings.HasSuffix(ref, ".png"))

	path := filepath.Join(dir, filepath.Base(ref))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, store.Release(ctx, ref))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Releasing twice and releasing foreign references are no-ops
	assert.NoError(t, store.Release(ctx, ref))
	assert.NoError(t, store.Release(ctx, "https://cdn.example.com/a.jpg"))
	assert.NoError(t, store.Release(ctx, "/uploads/../"))
}

func TestLocalStore_RejectsUnsupportedType(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), strings.NewReader("x"), 1, "application/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestLocalStore_RejectsOversizedImage(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	big := bytes.Repeat([]byte{0}, MaxImageSize+1)
	_, err = store.Put(context.Background(), bytes.NewReader(big), int64(len(big)), "image/jpeg")
	assert.ErrorIs(t, err, ErrImageTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func ptr(s string) *string { return &s }
