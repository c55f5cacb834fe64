package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petclassifier/config"
)

func TestKey(t *testing.T) {
	s := NewStore(nil, "models", "classifiers/")
	assert.Equal(t, "classifiers/cat_dog_classifier.pkl", s.Key("cat_dog_classifier.pkl"))
	assert.Equal(t, "m.pkl", NewStore(nil, "models", "").Key("m.pkl"))
}

func TestDialRequiresConfig(t *testing.T) {
	_, err := Dial(config.StorageConfig{})
	assert.Error(t, err)
}

// TestPublishFetch_Integration requires a running MinIO instance.
// Skip if not available.
func TestPublishFetch_Integration(t *testing.T) {
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	store := NewStore(client, "petclassifier-test", "test-prefix/")
	dir := t.TempDir()
	local := filepath.Join(dir, "model.pkl")
	require.NoError(t, os.WriteFile(local, []byte("artifact"), 0o600))

	key, err := store.Publish(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, "test-prefix/model.pkl", key)

	fetched := filepath.Join(dir, "fetched.pkl")
	require.NoError(t, store.Fetch(ctx, "model.pkl", fetched))
	data, err := os.ReadFile(fetched)
	require.NoError(t, err)
	assert.Equal(t, "artifact", string(data))

	assert.ErrorIs(t, store.Fetch(ctx, "absent.pkl", filepath.Join(dir, "x")), ErrNotFound)
}
