// Package download materializes uploaded files from object storage with
// bounded retry and a streaming size guard.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/maliev/geometry-service/internal/cleanup"
	"github.com/maliev/geometry-service/internal/logging"
	"github.com/maliev/geometry-service/internal/metrics"
	"github.com/maliev/geometry-service/internal/storage"
)

// ErrSizeLimit is returned when the streamed byte count crosses the
// configured limit. Checked during streaming, not from declared metadata.
var ErrSizeLimit = errors.New("size limit exceeded")

// Manager wraps an ObjectStore with retry, backoff, and a size guard.
type Manager struct {
	store    storage.ObjectStore
	maxBytes int64
	attempts int
	initial  time.Duration
	tempDir  string
	log      *slog.Logger
}

// Options configures a download Manager.
type Options struct {
	MaxBytes        int64
	Attempts        int           // total attempts, including the first
	InitialInterval time.Duration // first backoff delay; zero picks a default
	TempDir         string
}

// NewManager creates a download manager backed by the given store.
func NewManager(store storage.ObjectStore, opts Options) *Manager {
	if opts.Attempts < 1 {
		opts.Attempts = 3
	}
	if opts.MaxBytes < 1 {
		opts.MaxBytes = 200 * 1024 * 1024
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Manager{
		store:    store,
		maxBytes: opts.MaxBytes,
		attempts: opts.Attempts,
		initial:  opts.InitialInterval,
		tempDir:  opts.TempDir,
		log:      logging.Component("download"),
	}
}

// Fetch streams bucket/key into a temp file and returns its path and size.
// The path is registered with the cleanup scope before any bytes are read,
// so it is deleted on every exit path of the job. Transient failures are
// retried with exponential backoff and jitter; missing objects and size
// violations fail immediately.
func (m *Manager) Fetch(ctx context.Context, bucket, key string, scope *cleanup.Scope) (string, int64, error) {
	f, err := os.CreateTemp(m.tempDir, "geometry-*"+sanitizeExt(key))
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	scope.Register(path)
	f.Close()

	attempt := 0
	var size int64

	op := func() error {
		attempt++
		n, err := m.fetchOnce(ctx, bucket, key, path)
		if err != nil {
			if errors.Is(err, ErrSizeLimit) || errors.Is(err, storage.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		size = n
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.initial
	b := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(m.attempts-1)), ctx)

	notify := func(err error, next time.Duration) {
		m.log.Warn("download failed, retrying",
			"bucket", bucket, "key", key,
			"attempt", attempt, "max_attempts", m.attempts,
			"next_retry_in", next, "error", err)
		if mt := metrics.Get(); mt != nil {
			mt.DownloadRetries.Inc()
		}
	}

	start := time.Now()
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if mt := metrics.Get(); mt != nil && !errors.Is(err, ErrSizeLimit) {
			mt.StorageErrors.Inc()
		}
		return "", 0, fmt.Errorf("download %s/%s after %d attempt(s): %w", bucket, key, attempt, err)
	}

	if mt := metrics.Get(); mt != nil {
		mt.DownloadDuration.Observe(time.Since(start).Seconds())
		mt.DownloadBytes.Observe(float64(size))
	}
	m.log.Debug("downloaded file", "bucket", bucket, "key", key, "bytes", size, "attempts", attempt)
	return path, size, nil
}

// fetchOnce streams one download attempt into path, truncating any partial
// bytes left by a previous attempt.
func (m *Manager) fetchOnce(ctx context.Context, bucket, key, path string) (int64, error) {
	r, err := m.store.Open(ctx, bucket, key)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("open temp file: %w", err)
	}
	defer f.Close()

	// Copy at most limit+1 bytes: landing past the limit means the object
	// is too large regardless of what its metadata claimed.
	n, err := io.Copy(f, io.LimitReader(r, m.maxBytes+1))
	if err != nil {
		return 0, fmt.Errorf("stream object: %w", err)
	}
	if n > m.maxBytes {
		return 0, fmt.Errorf("object exceeds %d bytes: %w", m.maxBytes, ErrSizeLimit)
	}
	return n, nil
}

// sanitizeExt preserves the object's extension on the temp file name so the
// suffix survives for format dispatch and debugging.
func sanitizeExt(key string) string {
	for i := len(key) - 1; i >= 0 && len(key)-i <= 8; i-- {
		switch key[i] {
		case '.':
			return key[i:]
		case '/', '\\':
			return ""
		}
	}
	return ""
}
