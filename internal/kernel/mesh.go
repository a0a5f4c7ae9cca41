package kernel

import (
	"errors"
	"math"
)

// Vec3 is a point or vector in 3D space.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// TriangleMesh is an indexed triangle mesh. It implements Mesh.
type TriangleMesh struct {
	verts []Vec3
	faces [][3]int
}

// NewTriangleMesh builds a mesh from vertices and faces. Face indices must
// be in range; degenerate faces (repeated indices) are dropped.
func NewTriangleMesh(verts []Vec3, faces [][3]int) (*TriangleMesh, error) {
	clean := make([][3]int, 0, len(faces))
	for _, f := range faces {
		for _, idx := range f {
			if idx < 0 || idx >= len(verts) {
				return nil, errors.New("face index out of range")
			}
		}
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			continue
		}
		clean = append(clean, f)
	}
	if len(clean) == 0 {
		return nil, errors.New("mesh has no triangles")
	}
	return &TriangleMesh{verts: verts, faces: clean}, nil
}

// TriangleCount implements Mesh.
func (m *TriangleMesh) TriangleCount() int {
	return len(m.faces)
}

// referenced returns the indices of vertices used by at least one face.
func (m *TriangleMesh) referenced() []int {
	used := make([]bool, len(m.verts))
	for _, f := range m.faces {
		used[f[0]] = true
		used[f[1]] = true
		used[f[2]] = true
	}
	var out []int
	for i, u := range used {
		if u {
			out = append(out, i)
		}
	}
	return out
}

// edgeCounts returns, for each undirected edge, the number of faces that
// border it.
func (m *TriangleMesh) edgeCounts() map[[2]int]int {
	counts := make(map[[2]int]int, len(m.faces)*3/2)
	for _, f := range m.faces {
		pairs := [3][2]int{{f[0], f[1]}, {f[1], f[2]}, {f[2], f[0]}}
		for _, p := range pairs {
			a, b := p[0], p[1]
			if a > b {
				a, b = b, a
			}
			counts[[2]int{a, b}]++
		}
	}
	return counts
}

// IsWatertight implements Mesh: every edge must border exactly two faces.
func (m *TriangleMesh) IsWatertight() bool {
	for _, c := range m.edgeCounts() {
		if c != 2 {
			return false
		}
	}
	return true
}

// EulerNumber implements Mesh: V - E + F over referenced vertices and
// unique undirected edges.
func (m *TriangleMesh) EulerNumber() int {
	return len(m.referenced()) - len(m.edgeCounts()) + len(m.faces)
}

// Volume implements Mesh via the divergence theorem: the absolute sum of
// signed tetrahedron volumes against the origin. Orientation-independent
// thanks to the absolute value, but only meaningful when watertight.
func (m *TriangleMesh) Volume() float64 {
	var sum float64
	for _, f := range m.faces {
		a, b, c := m.verts[f[0]], m.verts[f[1]], m.verts[f[2]]
		sum += a.Dot(b.Cross(c))
	}
	return math.Abs(sum) / 6.0
}

// SurfaceArea implements Mesh.
func (m *TriangleMesh) SurfaceArea() float64 {
	var sum float64
	for _, f := range m.faces {
		a, b, c := m.verts[f[0]], m.verts[f[1]], m.verts[f[2]]
		sum += b.Sub(a).Cross(c.Sub(a)).Length()
	}
	return sum / 2.0
}

// BoundingBox implements Mesh: axis-aligned extents in native orientation.
func (m *TriangleMesh) BoundingBox() (x, y, z float64) {
	min := Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}
	max := Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, i := range m.referenced() {
		v := m.verts[i]
		min.X = math.Min(min.X, v.X)
		min.Y = math.Min(min.Y, v.Y)
		min.Z = math.Min(min.Z, v.Z)
		max.X = math.Max(max.X, v.X)
		max.Y = math.Max(max.Y, v.Y)
		max.Z = math.Max(max.Z, v.Z)
	}
	return max.X - min.X, max.Y - min.Y, max.Z - min.Z
}

// BodyCount implements Mesh: the number of face-connected shells, computed
// with union-find over vertices shared by faces. A cavity shell inside a
// hollow part counts as its own body, so files with internal voids are
// rejected the same way assemblies are.
func (m *TriangleMesh) BodyCount() int {
	parent := make([]int, len(m.verts))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, f := range m.faces {
		union(f[0], f[1])
		union(f[1], f[2])
	}

	roots := make(map[int]struct{})
	for _, i := range m.referenced() {
		roots[find(i)] = struct{}{}
	}
	return len(roots)
}

// ConvexHull implements Mesh.
func (m *TriangleMesh) ConvexHull() (Mesh, error) {
	pts := make([]Vec3, 0, len(m.verts))
	for _, i := range m.referenced() {
		pts = append(pts, m.verts[i])
	}
	return convexHull(pts)
}
