// Package storage publishes trained artifacts to S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"petclassifier/config"
)

var ErrNotFound = errors.New("object not found")

const artifactContentType = "application/zstd"

// Store copies artifacts to and from one bucket under a key prefix.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore wraps an existing client.
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

// Dial builds a client from cfg.
func Dial(cfg config.StorageConfig) (*Store, error) {
	if !cfg.Enabled() {
		return nil, errors.New("storage endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return NewStore(client, cfg.Bucket, cfg.Prefix), nil
}

// Key returns the object key for name.
func (s *Store) Key(name string) string {
	return path.Join(s.prefix, name)
}

// Publish uploads the local file, creating the bucket on first use, and
// returns the object key.
func (s *Store) Publish(ctx context.Context, localPath string) (string, error) {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}

	key := s.Key(filepath.Base(localPath))
	if _, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: artifactContentType,
	}); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// Fetch downloads name into localPath.
func (s *Store) Fetch(ctx context.Context, name, localPath string) error {
	key := s.Key(name)
	if err := s.client.FGetObject(ctx, s.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return ErrNotFound
		}
		return err
	}
	return nil
}
