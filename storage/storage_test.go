package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobylas-w/ThaiTable-sub000/config"
)

func TestLocalStorePutAndDelete(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root, "/uploads/")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := s.Put(ctx, "menus/1/7.jpg", strings.NewReader("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/menus/1/7.jpg", url)

	got, err := os.ReadFile(filepath.Join(root, "menus", "1", "7.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(got))

	require.NoError(t, s.Delete(ctx, "menus/1/7.jpg"))
	require.NoError(t, s.Delete(ctx, "menus/1/7.jpg"), "deleting a missing file is not an error")
	_, err = os.Stat(filepath.Join(root, "menus", "1", "7.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	for _, key := range []string{"../etc/passwd", "/abs.jpg", "menus/../../x", ""} {
		_, err := s.Put(context.Background(), key, strings.NewReader("x"), "image/png")
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestS3StoreURL(t *testing.T) {
	s, err := NewS3Store(context.Background(), config.S3Config{
		Bucket: "menus", Region: "ap-southeast-1", Key: "k", Secret: "s",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://menus.s3.ap-southeast-1.amazonaws.com/menus/1/7.jpg", s.URL("menus/1/7.jpg"))

	s, err = NewS3Store(context.Background(), config.S3Config{
		Bucket: "menus", Key: "k", Secret: "s", Endpoint: "http://localhost:9000", PublicURL: "https://cdn.example.com/",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", s.URL("a.png"))

	_, err = NewS3Store(context.Background(), config.S3Config{})
	assert.Error(t, err)
}

func TestNewPicksLocalWithoutBucket(t *testing.T) {
	cfg := config.Default()
	cfg.UploadDir = t.TempDir()
	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	_, ok := s.(*LocalStore)
	assert.True(t, ok)
}
