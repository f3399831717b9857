package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapstream/pkg/config"
)

func TestLocalStorage_UploadDownload(t *testing.T) {
	tempDir := t.TempDir()
	store, err := NewLocalStorage(tempDir)
	require.NoError(t, err)

	content := []byte(`{"total_heap_bytes": 2653000}`)
	require.NoError(t, store.Upload(context.Background(), "results/run-1.json", bytes.NewReader(content)))

	rc, err := store.Download(context.Background(), "results/run-1.json")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestLocalStorage_UploadFile(t *testing.T) {
	tempDir := t.TempDir()
	store, err := NewLocalStorage(filepath.Join(tempDir, "store"))
	require.NoError(t, err)

	src := filepath.Join(tempDir, "artifact.json")
	require.NoError(t, os.WriteFile(src, []byte("artifact"), 0644))

	require.NoError(t, store.UploadFile(context.Background(), "a/b/artifact.json", src))

	exists, err := store.Exists(context.Background(), "a/b/artifact.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalStorage_ExistsAndDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "missing.json")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Upload(ctx, "present.json", bytes.NewReader([]byte("x"))))
	exists, err = store.Exists(ctx, "present.json")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, "present.json"))
	exists, err = store.Exists(ctx, "present.json")
	require.NoError(t, err)
	assert.False(t, exists)

	// deleting a missing key is not an error
	assert.NoError(t, store.Delete(ctx, "present.json"))
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, store.Upload(ctx, "x", bytes.NewReader([]byte("y"))))
}

func TestValidateConfig(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		assert.Error(t, ValidateConfig(nil))
	})

	t.Run("local requires path", func(t *testing.T) {
		assert.Error(t, ValidateConfig(&config.StorageConfig{Type: "local"}))
		assert.NoError(t, ValidateConfig(&config.StorageConfig{Type: "local", LocalPath: "./x"}))
	})

	t.Run("cos requires bucket region credentials", func(t *testing.T) {
		assert.Error(t, ValidateConfig(&config.StorageConfig{Type: "cos"}))
		assert.Error(t, ValidateConfig(&config.StorageConfig{Type: "cos", Bucket: "b"}))
		assert.NoError(t, ValidateConfig(&config.StorageConfig{
			Type: "cos", Bucket: "b", Region: "ap-guangzhou", SecretID: "id", SecretKey: "key",
		}))
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		assert.Error(t, ValidateConfig(&config.StorageConfig{Type: "s3"}))
	})

	t.Run("empty type falls back to local", func(t *testing.T) {
		assert.NoError(t, ValidateConfig(&config.StorageConfig{LocalPath: "./x"}))
	})
}

func TestNewStorage_Local(t *testing.T) {
	store, err := New(&config.StorageConfig{Type: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	_, ok := store.(*LocalStorage)
	assert.True(t, ok)
}

func TestCOSStorage_ConfigValidation(t *testing.T) {
	_, err := NewCOSStorage(&COSConfig{})
	assert.Error(t, err)

	store, err := NewCOSStorage(&COSConfig{
		Bucket: "results", Region: "ap-guangzhou", SecretID: "id", SecretKey: "key",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://results.cos.ap-guangzhou.myqcloud.com/results/run.json",
		store.GetURL("results/run.json"))
}
