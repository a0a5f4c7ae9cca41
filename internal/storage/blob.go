package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"sync"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // local file driver
	_ "gocloud.dev/blob/gcsblob"  // GCS driver
	_ "gocloud.dev/blob/s3blob"   // S3 driver
	"gocloud.dev/gcerrors"
)

// blobStore reads objects through gocloud.dev, so the same code path serves
// AWS S3, Backblaze B2, Cloudflare R2, GCS, and local directories.
type blobStore struct {
	urlFor func(bucket string) string

	mu      sync.Mutex
	buckets map[string]*blob.Bucket
}

func newBlobStore(urlFor func(bucket string) string) *blobStore {
	return &blobStore{
		urlFor:  urlFor,
		buckets: make(map[string]*blob.Bucket),
	}
}

// s3BucketURL builds a gocloud.dev bucket URL.
// For AWS: s3://bucket-name?region=us-east-1
// For custom endpoints: s3://bucket-name?endpoint=https://...&region=...
func s3BucketURL(bucket, endpoint, region string) string {
	bucketURL := fmt.Sprintf("s3://%s", bucket)

	params := url.Values{}
	if region != "" {
		params.Set("region", region)
	}
	if endpoint != "" {
		params.Set("endpoint", endpoint)
		params.Set("s3ForcePathStyle", "true")
	}
	if len(params) > 0 {
		bucketURL = bucketURL + "?" + params.Encode()
	}
	return bucketURL
}

// bucket returns an open bucket handle, opening it on first use.
func (s *blobStore) bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[name]; ok {
		return b, nil
	}

	b, err := blob.OpenBucket(ctx, s.urlFor(name))
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", name, err)
	}
	s.buckets[name] = b
	return b, nil
}

// Open implements ObjectStore.
func (s *blobStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	b, err := s.bucket(ctx, bucket)
	if err != nil {
		return nil, err
	}

	r, err := b.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s/%s: %w", bucket, key, err)
	}
	return r, nil
}

// Close implements ObjectStore.
func (s *blobStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, b := range s.buckets {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close bucket %s: %w", name, err)
		}
		delete(s.buckets, name)
	}
	return firstErr
}

// newLocalStore maps buckets to subdirectories of root via fileblob.
func newLocalStore(root string) *blobStore {
	return newBlobStore(func(bucket string) string {
		abs, err := filepath.Abs(filepath.Join(root, bucket))
		if err != nil {
			abs = filepath.Join(root, bucket)
		}
		return "file://" + filepath.ToSlash(abs)
	})
}
