package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/maliev/geometry-service/internal/cleanup"
	"github.com/maliev/geometry-service/internal/download"
	"github.com/maliev/geometry-service/internal/format"
	"github.com/maliev/geometry-service/internal/kernel"
	"github.com/maliev/geometry-service/internal/logging"
	"github.com/maliev/geometry-service/internal/metrics"
)

// Publisher emits the typed outcome of a job. Exactly one publish attempt
// is made per pipeline run.
type Publisher interface {
	Publish(ctx context.Context, res Result) error
}

// Pipeline owns the end-to-end lifecycle of one analysis job at a time per
// caller. It is stateless across jobs and safe for concurrent use by a
// worker pool.
type Pipeline struct {
	downloads *download.Manager
	kern      kernel.Kernel
	publisher Publisher
	timeout   time.Duration
	log       *slog.Logger
}

// NewPipeline creates an analysis pipeline.
func NewPipeline(downloads *download.Manager, kern kernel.Kernel, publisher Publisher, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pipeline{
		downloads: downloads,
		kern:      kern,
		publisher: publisher,
		timeout:   timeout,
		log:       logging.Component("pipeline"),
	}
}

// Process runs a job to a terminal state and publishes its outcome. A nil
// return means the outcome is durably published and the message may be
// acknowledged. A non-nil return means the job is unresolved (publish
// failed) and the broker layer should redeliver it; reprocessing the same
// input is deterministic and safe.
func (p *Pipeline) Process(ctx context.Context, job *Job) error {
	start := time.Now()
	log := logging.JobLogger(job.CorrelationID, job.FileID, job.Bucket, job.Key)
	log.Info("processing job", "content_type", job.ContentType)

	if m := metrics.Get(); m != nil {
		m.InFlightJobs.Inc()
		defer m.InFlightJobs.Dec()
	}

	// Every step of the job shares one deadline.
	jobCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	scope := cleanup.NewScope(log)
	defer scope.Close()

	res := p.run(jobCtx, job, scope, log)
	res.ProcessedAt = time.Now().UTC()

	// Publish on the parent context: an expired job deadline must not
	// suppress the TIMEOUT outcome.
	if err := p.publisher.Publish(ctx, res); err != nil {
		if m := metrics.Get(); m != nil {
			m.PublishErrors.Inc()
		}
		log.Error("outcome publish failed, job unresolved", "error", err)
		return fmt.Errorf("publish outcome for %s: %w", job.FileID, err)
	}

	elapsed := time.Since(start)
	if m := metrics.Get(); m != nil {
		m.JobDuration.Observe(elapsed.Seconds())
		if res.Succeeded() {
			m.JobsProcessed.WithLabelValues("success").Inc()
		} else {
			m.JobsProcessed.WithLabelValues("failure").Inc()
			m.JobsFailed.WithLabelValues(string(res.Code)).Inc()
		}
	}

	if res.Succeeded() {
		log.Info("job analyzed",
			"duration_ms", elapsed.Milliseconds(),
			"volume_cm3", res.Metrics.VolumeCm3,
			"manifold", res.Metrics.IsManifold,
			"triangles", res.Metrics.TriangleCount)
	} else {
		log.Info("job failed",
			"duration_ms", elapsed.Milliseconds(),
			"code", res.Code,
			"details", res.Details)
	}
	return nil
}

// run walks the state machine to a terminal Result. It never returns an
// error and never panics past its own boundary: kernel misbehavior on one
// job must not take down the consumer process.
func (p *Pipeline) run(ctx context.Context, job *Job, scope *cleanup.Scope, log *slog.Logger) (res Result) {
	state := StateReceived

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in analysis step",
				"state", state, "panic", r, "stack", string(debug.Stack()))
			res = p.failure(job, fmt.Errorf("panic in %s: %v", state, r))
		}
	}()

	// Downloading
	state = StateDownloading
	path, size, err := p.downloads.Fetch(ctx, job.Bucket, job.Key, scope)
	if err != nil {
		return p.failure(job, failAt(state, err))
	}
	job.Attempt++

	data, err := os.ReadFile(path)
	if err != nil {
		return p.failure(job, failAt(state, err))
	}
	log.Debug("file materialized", "bytes", size)

	// Dispatching
	state = StateDispatching
	declared, err := format.Classify(job.ContentType, dispatchName(job))
	if err != nil {
		return p.failure(job, failAt(state, err))
	}
	if err := format.Check(declared, data); err != nil {
		return p.failure(job, failAt(state, err))
	}

	analyzeStart := time.Now()
	var mesh kernel.Mesh
	if declared.IsCAD() {
		mesh, err = p.kern.Tessellate(ctx, data, declared.String())
	} else {
		mesh, err = p.kern.Load(ctx, data, declared.String())
	}
	if err != nil {
		return p.failure(job, failAt(state, err))
	}

	// BodyCheck
	state = StateBodyCheck
	if err := ctx.Err(); err != nil {
		return p.failure(job, failAt(state, err))
	}
	if n := mesh.BodyCount(); n > 1 {
		return p.failure(job, failAt(state, fmt.Errorf("%d bodies: %w", n, errMultiBody)))
	}

	// ManifoldCheck + MetricsComputation
	state = StateManifold
	if err := ctx.Err(); err != nil {
		return p.failure(job, failAt(state, err))
	}
	state = StateMetrics
	gm := computeMetrics(mesh, log)
	if err := ctx.Err(); err != nil {
		return p.failure(job, failAt(state, err))
	}
	if m := metrics.Get(); m != nil {
		m.AnalyzeDuration.Observe(time.Since(analyzeStart).Seconds())
	}

	state = StateDone
	return Result{Job: job, Metrics: gm}
}

// failure classifies an error into the terminal Failed result.
func (p *Pipeline) failure(job *Job, err error) Result {
	return Result{
		Job:     job,
		Code:    Classify(err),
		Details: err.Error(),
	}
}

// computeMetrics derives the metric set from a single-body mesh. Input
// units are millimeters by policy; volumes convert to cm³ and areas to cm².
//
// Non-manifold meshes are not failures: volume and area fall back to the
// convex hull (with isManifold=false recorded) so the caller can still
// price the part. Support volume is the bounding-box sweep minus the part
// volume, a deliberate conservative over-estimate rather than a slicer
// simulation.
func computeMetrics(mesh kernel.Mesh, log *slog.Logger) *GeometryMetrics {
	manifold := mesh.IsWatertight()

	volumeMM3 := 0.0
	areaMM2 := mesh.SurfaceArea()
	if manifold {
		volumeMM3 = mesh.Volume()
	} else {
		hull, err := mesh.ConvexHull()
		if err != nil {
			// Flat or broken geometry with no enclosable volume.
			log.Warn("convex hull fallback failed", "error", err)
		} else {
			volumeMM3 = hull.Volume()
			areaMM2 = hull.SurfaceArea()
		}
	}

	x, y, z := mesh.BoundingBox()
	support := x*y*z - volumeMM3
	if support < 0 {
		support = 0
	}

	return &GeometryMetrics{
		VolumeCm3:        volumeMM3 / 1000.0,
		SupportVolumeCm3: support / 1000.0,
		SurfaceAreaCm2:   areaMM2 / 100.0,
		BoundingBox:      BoundingBox{X: x, Y: y, Z: z},
		IsManifold:       manifold,
		TriangleCount:    mesh.TriangleCount(),
		EulerNumber:      mesh.EulerNumber(),
	}
}

// dispatchName picks the name used for extension-based classification.
func dispatchName(job *Job) string {
	if job.FileName != "" {
		return job.FileName
	}
	return job.Key
}
