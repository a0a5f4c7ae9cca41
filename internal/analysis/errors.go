package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/maliev/geometry-service/internal/download"
	"github.com/maliev/geometry-service/internal/format"
	"github.com/maliev/geometry-service/internal/kernel"
	"github.com/maliev/geometry-service/internal/storage"
)

// ErrorCode is the closed set of failure classifications carried on the
// wire.
type ErrorCode string

const (
	CodeFileCorrupt       ErrorCode = "FILE_CORRUPT"
	CodeFormatMismatch    ErrorCode = "FORMAT_MISMATCH"
	CodeSizeLimitExceeded ErrorCode = "SIZE_LIMIT_EXCEEDED"
	CodeMultiBody         ErrorCode = "MULTI_BODY_ERROR"
	CodeDownloadFailed    ErrorCode = "DOWNLOAD_FAILED"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeSystemError       ErrorCode = "SYSTEM_ERROR"

	// CodeNonManifold exists for wire compatibility with older consumers
	// but is never emitted: non-manifold geometry succeeds with
	// isManifold=false and hull-derived metrics.
	CodeNonManifold ErrorCode = "GEOMETRY_NON_MANIFOLD"
)

// errMultiBody marks files containing more than one disjoint solid.
// Assemblies are rejected, not split.
var errMultiBody = errors.New("file contains multiple disjoint bodies")

// State names the pipeline step in flight, for logging and failure
// attribution.
type State string

const (
	StateReceived    State = "received"
	StateDownloading State = "downloading"
	StateDispatching State = "dispatching"
	StateBodyCheck   State = "body_check"
	StateManifold    State = "manifold_check"
	StateMetrics     State = "metrics_computation"
	StateClassifying State = "classifying"
	StatePublishing  State = "publishing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// stageError records which state produced a failure.
type stageError struct {
	state State
	err   error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s: %v", e.state, e.err)
}

func (e *stageError) Unwrap() error { return e.err }

func failAt(state State, err error) *stageError {
	return &stageError{state: state, err: err}
}

// Classify maps a pipeline failure to its wire error code. Everything
// unrecognized is a SYSTEM_ERROR; that code should be rare and is the
// signal to look at the kernel or the environment.
func Classify(err error) ErrorCode {
	var parseErr *kernel.ParseError
	var tessErr *kernel.TessellationError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, download.ErrSizeLimit):
		return CodeSizeLimitExceeded
	case errors.Is(err, format.ErrMismatch):
		return CodeFormatMismatch
	case errors.Is(err, errMultiBody):
		return CodeMultiBody
	case errors.As(err, &parseErr), errors.As(err, &tessErr):
		return CodeFileCorrupt
	case errors.Is(err, format.ErrUnsupported):
		// The kernel has no loader for it, so the file is unusable as
		// declared.
		return CodeFileCorrupt
	case errors.Is(err, storage.ErrNotFound):
		return CodeDownloadFailed
	}

	var stage *stageError
	if errors.As(err, &stage) && stage.state == StateDownloading {
		return CodeDownloadFailed
	}
	return CodeSystemError
}
