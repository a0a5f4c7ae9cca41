// Package kernel exposes the geometry capability consumed by the analysis
// pipeline: loading mesh bytes into a queryable handle and tessellating
// BREP CAD data into an equivalent mesh.
//
// The deterministic mesh primitives (parsing, bounding box, Euler number,
// volume, surface area, connected components, convex hull) are implemented
// natively. Robust BREP tessellation is delegated to an external service.
package kernel

import (
	"context"
	"fmt"
)

// Kernel loads 3D data and answers geometric queries through Mesh handles.
type Kernel interface {
	// Load parses raw mesh bytes using the given format hint ("stl",
	// "obj", "3mf"). Returns a *ParseError for bytes it cannot parse.
	Load(ctx context.Context, data []byte, hint string) (Mesh, error)

	// Tessellate converts BREP CAD bytes ("step", "iges") into a mesh
	// approximation. Returns a *TessellationError on failure.
	Tessellate(ctx context.Context, data []byte, hint string) (Mesh, error)
}

// Mesh is an opaque handle answering metric queries. Handles are immutable
// and safe for concurrent reads.
type Mesh interface {
	// BodyCount returns the number of disjoint connected solids.
	BodyCount() int

	// IsWatertight reports whether every edge borders exactly two faces.
	IsWatertight() bool

	// Volume returns the enclosed volume in cubic input units. Meaningful
	// only for watertight meshes.
	Volume() float64

	// SurfaceArea returns the total triangle area in square input units.
	SurfaceArea() float64

	// BoundingBox returns axis-aligned extents in the mesh's native
	// orientation, without re-centering or rotation.
	BoundingBox() (x, y, z float64)

	// EulerNumber returns V - E + F; 2 for a simple closed solid.
	EulerNumber() int

	// TriangleCount returns the number of faces.
	TriangleCount() int

	// ConvexHull returns the smallest convex mesh enclosing all vertices.
	// Used as a best-effort metrics proxy for non-manifold input.
	ConvexHull() (Mesh, error)
}

// ParseError reports bytes the kernel cannot interpret as the hinted format.
type ParseError struct {
	Hint string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Hint, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TessellationError reports a failed BREP-to-mesh conversion.
type TessellationError struct {
	Hint string
	Err  error
}

func (e *TessellationError) Error() string {
	return fmt.Sprintf("tessellate %s: %v", e.Hint, e.Err)
}

func (e *TessellationError) Unwrap() error { return e.Err }
