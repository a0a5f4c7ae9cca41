// Package storage provides read access to uploaded files in object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned when the requested object does not exist.
// Callers treat it as permanent: a missing upload will not appear on retry.
var ErrNotFound = errors.New("object not found")

// ObjectStore streams file bytes from a key in a bucket.
type ObjectStore interface {
	// Open returns a streaming reader for the object. The caller must close
	// the reader. Returns ErrNotFound (possibly wrapped) for missing objects.
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Close releases any resources.
	Close() error
}

// Config configures the storage backend.
type Config struct {
	Backend string // "s3" | "gcs" | "minio" | "local"

	// S3 / MinIO
	Endpoint  string // custom endpoint for B2/MinIO/R2, host:port for minio backend
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool

	// Local filesystem (one directory per bucket)
	LocalDir string
}

// NewObjectStore creates a storage backend based on configuration.
func NewObjectStore(cfg Config) (ObjectStore, error) {
	switch cfg.Backend {
	case "s3":
		return newBlobStore(func(bucket string) string {
			return s3BucketURL(bucket, cfg.Endpoint, cfg.Region)
		}), nil
	case "gcs":
		return newBlobStore(func(bucket string) string {
			return fmt.Sprintf("gs://%s", bucket)
		}), nil
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return newLocalStore(cfg.LocalDir), nil
	case "minio":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("Endpoint required for minio backend")
		}
		return newMinioStore(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
