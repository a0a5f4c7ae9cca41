// Package cleanup guarantees deletion of files materialized during a job.
package cleanup

import (
	"log/slog"
	"os"
	"sync"
)

// Scope tracks temporary files created while processing a single job and
// removes them when the job reaches any terminal state. Register paths as
// soon as they are created; Close runs on every exit path, including panics
// unwound past the worker's deferred call.
type Scope struct {
	mu     sync.Mutex
	paths  []string
	closed bool
	log    *slog.Logger
}

// NewScope creates an empty cleanup scope.
func NewScope(log *slog.Logger) *Scope {
	if log == nil {
		log = slog.Default()
	}
	return &Scope{log: log}
}

// Register adds a path to be deleted when the scope closes. Registering
// after Close deletes the file immediately.
func (s *Scope) Register(path string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.remove(path)
		return
	}
	s.paths = append(s.paths, path)
	s.mu.Unlock()
}

// Close deletes all registered files. Safe to call more than once.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	for _, p := range paths {
		s.remove(p)
	}
}

func (s *Scope) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove temp file", "path", path, "error", err)
	}
}
