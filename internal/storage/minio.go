package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioStore reads objects through the native MinIO client. This is the
// backend the upload service deployment uses.
type minioStore struct {
	client *minio.Client
}

func newMinioStore(cfg Config) (*minioStore, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &minioStore{client: cli}, nil
}

// Open implements ObjectStore.
func (s *minioStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}

	// GetObject is lazy; Stat forces the first request so a missing key
	// surfaces here rather than on the first Read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s/%s: %w", bucket, key, err)
	}

	return obj, nil
}

// Close implements ObjectStore.
func (s *minioStore) Close() error {
	return nil
}
