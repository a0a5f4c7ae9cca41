// Package analysis runs the per-job state machine that turns an uploaded
// 3D file reference into a published geometry outcome.
package analysis

import "time"

// Job is the unit of work handed to the pipeline. It lives for exactly one
// message: created on receipt, owned by one worker, discarded after the
// outcome is published.
type Job struct {
	FileID        string
	Bucket        string
	Key           string
	ContentType   string
	FileName      string
	FileSize      int64
	UploadedAt    time.Time
	CorrelationID string
	Attempt       int // download attempts consumed
}

// BoundingBox holds axis-aligned extents in millimeters, in the file's
// native orientation.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// GeometryMetrics is the manufacturing-relevant output of a successful
// analysis. Produced exactly once per job, immutable after creation.
type GeometryMetrics struct {
	VolumeCm3        float64     `json:"volumeCm3"`
	SupportVolumeCm3 float64     `json:"supportVolumeCm3"`
	SurfaceAreaCm2   float64     `json:"surfaceAreaCm2"`
	BoundingBox      BoundingBox `json:"boundingBox"`
	IsManifold       bool        `json:"isManifold"`
	TriangleCount    int         `json:"triangleCount"`
	EulerNumber      int         `json:"eulerNumber"`
}

// Result is the single typed outcome of a job: either Metrics is set
// (success) or Code carries the failure classification.
type Result struct {
	Job         *Job
	Metrics     *GeometryMetrics
	Code        ErrorCode
	Details     string
	ProcessedAt time.Time
}

// Succeeded reports whether the job produced metrics.
func (r Result) Succeeded() bool {
	return r.Metrics != nil
}
