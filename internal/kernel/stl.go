package kernel

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// meshBuilder accumulates soup triangles (as STL stores them) into an
// indexed mesh, merging vertices that are bit-identical. STL writers emit
// the same coordinates for shared corners, so exact matching reconstructs
// the connectivity needed for the watertight and Euler queries.
type meshBuilder struct {
	verts []Vec3
	index map[Vec3]int
	faces [][3]int
}

func newMeshBuilder() *meshBuilder {
	return &meshBuilder{index: make(map[Vec3]int)}
}

func (b *meshBuilder) vertex(v Vec3) int {
	if i, ok := b.index[v]; ok {
		return i
	}
	i := len(b.verts)
	b.verts = append(b.verts, v)
	b.index[v] = i
	return i
}

func (b *meshBuilder) triangle(a, c, d Vec3) {
	b.faces = append(b.faces, [3]int{b.vertex(a), b.vertex(c), b.vertex(d)})
}

func (b *meshBuilder) build() (*TriangleMesh, error) {
	return NewTriangleMesh(b.verts, b.faces)
}

// parseSTL parses binary or ASCII STL. The binary layout check runs first:
// binary files routinely start with "solid" in their comment header.
func parseSTL(data []byte) (*TriangleMesh, error) {
	if isBinarySTLLayout(data) {
		return parseBinarySTL(data)
	}
	return parseASCIISTL(data)
}

func isBinarySTLLayout(data []byte) bool {
	if len(data) < 84 {
		return false
	}
	count := binary.LittleEndian.Uint32(data[80:84])
	return int64(len(data)) == 84+int64(count)*50
}

func parseBinarySTL(data []byte) (*TriangleMesh, error) {
	count := binary.LittleEndian.Uint32(data[80:84])
	if count == 0 {
		return nil, fmt.Errorf("binary stl declares zero triangles")
	}

	b := newMeshBuilder()
	off := 84
	for i := uint32(0); i < count; i++ {
		// 12 bytes normal (ignored), 3 vertices, 2-byte attribute.
		var tri [3]Vec3
		for v := 0; v < 3; v++ {
			base := off + 12 + v*12
			tri[v] = Vec3{
				X: float64(math.Float32frombits(binary.LittleEndian.Uint32(data[base:]))),
				Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(data[base+4:]))),
				Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(data[base+8:]))),
			}
		}
		b.triangle(tri[0], tri[1], tri[2])
		off += 50
	}
	return b.build()
}

func parseASCIISTL(data []byte) (*TriangleMesh, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	b := newMeshBuilder()
	var tri []Vec3
	sawSolid := false

	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "solid":
			sawSolid = true
		case "vertex":
			if len(fields) < 4 {
				return nil, fmt.Errorf("malformed vertex line %q", sc.Text())
			}
			v, err := parseVec3(fields[1], fields[2], fields[3])
			if err != nil {
				return nil, err
			}
			tri = append(tri, v)
		case "endfacet":
			if len(tri) != 3 {
				return nil, fmt.Errorf("facet with %d vertices", len(tri))
			}
			b.triangle(tri[0], tri[1], tri[2])
			tri = tri[:0]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !sawSolid {
		return nil, fmt.Errorf("missing solid header")
	}
	return b.build()
}

func parseVec3(xs, ys, zs string) (Vec3, error) {
	x, err := strconv.ParseFloat(xs, 64)
	if err != nil {
		return Vec3{}, fmt.Errorf("bad coordinate %q: %w", xs, err)
	}
	y, err := strconv.ParseFloat(ys, 64)
	if err != nil {
		return Vec3{}, fmt.Errorf("bad coordinate %q: %w", ys, err)
	}
	z, err := strconv.ParseFloat(zs, 64)
	if err != nil {
		return Vec3{}, fmt.Errorf("bad coordinate %q: %w", zs, err)
	}
	return Vec3{x, y, z}, nil
}
