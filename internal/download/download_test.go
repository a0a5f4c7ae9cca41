package download

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maliev/geometry-service/internal/cleanup"
	"github.com/maliev/geometry-service/internal/storage"
)

// flakyStore fails the first failures opens, then serves data.
type flakyStore struct {
	data     []byte
	failures int
	calls    int
	err      error
}

func (s *flakyStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.calls <= s.failures {
		return nil, errors.New("connection reset by peer")
	}
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func (s *flakyStore) Close() error { return nil }

func testManager(store storage.ObjectStore, dir string, maxBytes int64) *Manager {
	return NewManager(store, Options{
		MaxBytes:        maxBytes,
		Attempts:        3,
		InitialInterval: time.Millisecond,
		TempDir:         dir,
	})
}

func TestFetchSucceedsAfterTransientFailures(t *testing.T) {
	dir := t.TempDir()
	store := &flakyStore{data: []byte("mesh-bytes"), failures: 2}
	m := testManager(store, dir, 1024)

	scope := cleanup.NewScope(nil)
	path, size, err := m.Fetch(context.Background(), "uploads", "part.stl", scope)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if store.calls != 3 {
		t.Errorf("calls = %d, want 3", store.calls)
	}
	if size != int64(len(store.data)) {
		t.Errorf("size = %d, want %d", size, len(store.data))
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, store.data) {
		t.Errorf("content = %q, want %q", got, store.data)
	}
	if filepath.Ext(path) != ".stl" {
		t.Errorf("temp file %q should keep the .stl suffix", path)
	}

	scope.Close()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("temp file should be gone after scope close")
	}
}

func TestFetchExhaustsAttempts(t *testing.T) {
	store := &flakyStore{data: []byte("x"), failures: 10}
	m := testManager(store, t.TempDir(), 1024)

	scope := cleanup.NewScope(nil)
	defer scope.Close()
	_, _, err := m.Fetch(context.Background(), "uploads", "part.stl", scope)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if store.calls != 3 {
		t.Errorf("calls = %d, want 3", store.calls)
	}
}

func TestFetchNotFoundIsPermanent(t *testing.T) {
	store := &flakyStore{err: storage.ErrNotFound}
	m := testManager(store, t.TempDir(), 1024)

	scope := cleanup.NewScope(nil)
	defer scope.Close()
	_, _, err := m.Fetch(context.Background(), "uploads", "missing.stl", scope)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want storage.ErrNotFound", err)
	}
	if store.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on not found)", store.calls)
	}
}

func TestFetchSizeLimit(t *testing.T) {
	store := &flakyStore{data: bytes.Repeat([]byte("a"), 100)}
	m := testManager(store, t.TempDir(), 64)

	scope := cleanup.NewScope(nil)
	defer scope.Close()
	_, _, err := m.Fetch(context.Background(), "uploads", "big.stl", scope)
	if !errors.Is(err, ErrSizeLimit) {
		t.Fatalf("err = %v, want ErrSizeLimit", err)
	}
	if store.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on size limit)", store.calls)
	}
}

func TestFetchExactlyAtLimit(t *testing.T) {
	store := &flakyStore{data: bytes.Repeat([]byte("a"), 64)}
	m := testManager(store, t.TempDir(), 64)

	scope := cleanup.NewScope(nil)
	defer scope.Close()
	_, size, err := m.Fetch(context.Background(), "uploads", "edge.stl", scope)
	if err != nil {
		t.Fatalf("Fetch at exact limit: %v", err)
	}
	if size != 64 {
		t.Errorf("size = %d, want 64", size)
	}
}

func TestFetchRegistersBeforeStreaming(t *testing.T) {
	// Even a failing fetch must leave its temp path registered so the scope
	// removes the partial file.
	dir := t.TempDir()
	store := &flakyStore{err: storage.ErrNotFound}
	m := testManager(store, dir, 1024)

	scope := cleanup.NewScope(nil)
	if _, _, err := m.Fetch(context.Background(), "uploads", "missing.stl", scope); err == nil {
		t.Fatal("expected error")
	}
	scope.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir still has %d entries after scope close", len(entries))
	}
}

func TestSanitizeExt(t *testing.T) {
	cases := map[string]string{
		"part.stl":              ".stl",
		"uploads/2024/part.3mf": ".3mf",
		"no-extension":          "",
		"dir.with.dots/file":    "",
		"part.verylongsuffix":   "",
	}
	for key, want := range cases {
		if got := sanitizeExt(key); got != want {
			t.Errorf("sanitizeExt(%q) = %q, want %q", key, got, want)
		}
	}
}
