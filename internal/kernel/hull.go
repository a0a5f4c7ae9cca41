package kernel

import (
	"errors"
	"fmt"
	"math"
)

// errDegenerate is returned when the point set has no 3D extent, so no
// solid hull exists.
var errDegenerate = errors.New("degenerate point set, no 3D hull")

// convexHull computes the convex hull of pts with an incremental
// algorithm: seed a tetrahedron from extremal points, then fold each
// remaining point in by replacing the faces it can see with a fan to the
// horizon. O(n * f), adequate for the non-manifold fallback path.
func convexHull(pts []Vec3) (*TriangleMesh, error) {
	if len(pts) < 4 {
		return nil, fmt.Errorf("%d points: %w", len(pts), errDegenerate)
	}

	eps := hullEpsilon(pts)

	seed, err := seedTetrahedron(pts, eps)
	if err != nil {
		return nil, err
	}

	// Faces oriented with outward normals.
	faces := [][3]int{
		{seed[0], seed[2], seed[1]},
		{seed[0], seed[1], seed[3]},
		{seed[0], seed[3], seed[2]},
		{seed[1], seed[2], seed[3]},
	}

	inSeed := map[int]bool{seed[0]: true, seed[1]: true, seed[2]: true, seed[3]: true}

	for pi := range pts {
		if inSeed[pi] {
			continue
		}
		faces = addPoint(pts, faces, pi, eps)
	}

	return hullMesh(pts, faces)
}

// hullEpsilon scales the visibility tolerance by the point cloud's extent.
func hullEpsilon(pts []Vec3) float64 {
	var maxAbs float64
	for _, p := range pts {
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(p.X), math.Max(math.Abs(p.Y), math.Abs(p.Z))))
	}
	if maxAbs == 0 {
		maxAbs = 1
	}
	return 1e-9 * maxAbs
}

// seedTetrahedron picks four points with non-zero volume: an extremal
// point, the farthest point from it, the farthest from their line, and the
// farthest from their plane, oriented so the signed volume is positive.
func seedTetrahedron(pts []Vec3, eps float64) ([4]int, error) {
	var seed [4]int

	p0 := 0
	for i, p := range pts {
		if p.X < pts[p0].X {
			p0 = i
		}
	}

	p1, best := -1, eps
	for i, p := range pts {
		if d := p.Sub(pts[p0]).Length(); d > best {
			p1, best = i, d
		}
	}
	if p1 < 0 {
		return seed, errDegenerate
	}

	dir := pts[p1].Sub(pts[p0])
	p2, best := -1, eps*dir.Length()
	for i, p := range pts {
		if d := dir.Cross(p.Sub(pts[p0])).Length(); d > best {
			p2, best = i, d
		}
	}
	if p2 < 0 {
		return seed, errDegenerate
	}

	n := dir.Cross(pts[p2].Sub(pts[p0]))
	p3, best := -1, eps*n.Length()
	for i, p := range pts {
		if d := math.Abs(n.Dot(p.Sub(pts[p0]))); d > best {
			p3, best = i, d
		}
	}
	if p3 < 0 {
		return seed, errDegenerate
	}

	// Ensure positive orientation so the face winding below points outward.
	if pts[p1].Sub(pts[p0]).Dot(pts[p2].Sub(pts[p0]).Cross(pts[p3].Sub(pts[p0]))) < 0 {
		p1, p2 = p2, p1
	}

	return [4]int{p0, p1, p2, p3}, nil
}

// addPoint folds one point into the hull. Points inside the current hull
// leave it unchanged.
func addPoint(pts []Vec3, faces [][3]int, pi int, eps float64) [][3]int {
	p := pts[pi]

	visible := make([]bool, len(faces))
	any := false
	for i, f := range faces {
		a := pts[f[0]]
		n := pts[f[1]].Sub(a).Cross(pts[f[2]].Sub(a))
		if n.Dot(p.Sub(a)) > eps {
			visible[i] = true
			any = true
		}
	}
	if !any {
		return faces
	}

	// Horizon: directed edges of visible faces whose reverse edge does not
	// belong to another visible face.
	edges := make(map[[2]int]bool)
	for i, f := range faces {
		if !visible[i] {
			continue
		}
		for _, e := range [3][2]int{{f[0], f[1]}, {f[1], f[2]}, {f[2], f[0]}} {
			edges[e] = true
		}
	}

	next := make([][3]int, 0, len(faces))
	for i, f := range faces {
		if !visible[i] {
			next = append(next, f)
		}
	}
	for e := range edges {
		if edges[[2]int{e[1], e[0]}] {
			continue // interior edge between two visible faces
		}
		next = append(next, [3]int{e[0], e[1], pi})
	}
	return next
}

// hullMesh compacts hull faces into a TriangleMesh with remapped vertices.
func hullMesh(pts []Vec3, faces [][3]int) (*TriangleMesh, error) {
	remap := make(map[int]int)
	var verts []Vec3
	mapped := make([][3]int, len(faces))
	for i, f := range faces {
		for j, idx := range f {
			ni, ok := remap[idx]
			if !ok {
				ni = len(verts)
				remap[idx] = ni
				verts = append(verts, pts[idx])
			}
			mapped[i][j] = ni
		}
	}
	return NewTriangleMesh(verts, mapped)
}
