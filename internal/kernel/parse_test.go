package kernel

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

// binarySTL serializes a mesh the way slicers write it: 80-byte comment
// header, triangle count, then 50 bytes per triangle.
func binarySTL(t *testing.T, m *TriangleMesh) []byte {
	t.Helper()
	var buf bytes.Buffer
	header := make([]byte, 80)
	copy(header, "solid exported") // binary files often claim to be ASCII
	buf.Write(header)
	binary.Write(&buf, binary.LittleEndian, uint32(len(m.faces)))
	for _, f := range m.faces {
		binary.Write(&buf, binary.LittleEndian, [3]float32{}) // normal
		for _, idx := range f {
			v := m.verts[idx]
			binary.Write(&buf, binary.LittleEndian, [3]float32{
				float32(v.X), float32(v.Y), float32(v.Z),
			})
		}
		binary.Write(&buf, binary.LittleEndian, uint16(0))
	}
	return buf.Bytes()
}

func asciiSTL(m *TriangleMesh) []byte {
	var sb strings.Builder
	sb.WriteString("solid part\n")
	for _, f := range m.faces {
		sb.WriteString("  facet normal 0 0 0\n    outer loop\n")
		for _, idx := range f {
			v := m.verts[idx]
			fmt.Fprintf(&sb, "      vertex %g %g %g\n", v.X, v.Y, v.Z)
		}
		sb.WriteString("    endloop\n  endfacet\n")
	}
	sb.WriteString("endsolid part\n")
	return []byte(sb.String())
}

func TestParseBinarySTL(t *testing.T) {
	cube := cubeMesh(t, 20)
	m, err := parseSTL(binarySTL(t, cube))
	if err != nil {
		t.Fatalf("parseSTL: %v", err)
	}
	if got := m.TriangleCount(); got != 12 {
		t.Errorf("TriangleCount = %d, want 12", got)
	}
	if !m.IsWatertight() {
		t.Error("roundtripped cube should be watertight")
	}
	approx(t, "Volume", m.Volume(), 8000, 1e-3)
}

func TestParseASCIISTL(t *testing.T) {
	cube := cubeMesh(t, 20)
	m, err := parseSTL(asciiSTL(cube))
	if err != nil {
		t.Fatalf("parseSTL: %v", err)
	}
	if got := m.TriangleCount(); got != 12 {
		t.Errorf("TriangleCount = %d, want 12", got)
	}
	approx(t, "Volume", m.Volume(), 8000, 1e-3)
}

func TestParseSTLBinaryHeaderSaysSolid(t *testing.T) {
	// A binary file whose header starts with "solid" must still be parsed
	// as binary: the layout check decides, not the header text.
	data := binarySTL(t, cubeMesh(t, 5))
	if !bytes.HasPrefix(data, []byte("solid")) {
		t.Fatal("fixture should start with solid")
	}
	m, err := parseSTL(data)
	if err != nil {
		t.Fatalf("parseSTL: %v", err)
	}
	approx(t, "Volume", m.Volume(), 125, 1e-6)
}

func TestParseSTLRejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"empty":          nil,
		"truncated":      binarySTL(t, cubeMesh(t, 5))[:90],
		"no solid":       []byte("not a mesh at all\n"),
		"bad coordinate": []byte("solid x\nfacet\nouter loop\nvertex 1 2 zz\nvertex 0 0 0\nvertex 1 0 0\nendloop\nendfacet\nendsolid\n"),
		"short facet":    []byte("solid x\nfacet\nouter loop\nvertex 0 0 0\nendloop\nendfacet\nendsolid\n"),
	}
	for name, data := range cases {
		if _, err := parseSTL(data); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParseOBJ(t *testing.T) {
	obj := []byte(`# quad tetrahedron-ish fixture
v 0 0 0
v 10 0 0
v 10 10 0
v 0 10 0
v 0 0 10
v 10 0 10
v 10 10 10
v 0 10 10
f 1 3 2
f 1 4 3
f 5 6 7
f 5 7 8
f 1 2 6 5
f 3 4 8 7
f 1 5 8 4
f 2 3 7 6
`)
	m, err := parseOBJ(obj)
	if err != nil {
		t.Fatalf("parseOBJ: %v", err)
	}
	// Four quads fan-triangulated plus four triangles.
	if got := m.TriangleCount(); got != 12 {
		t.Errorf("TriangleCount = %d, want 12", got)
	}
	if !m.IsWatertight() {
		t.Error("cube should be watertight")
	}
	approx(t, "Volume", m.Volume(), 1000, 1e-6)
}

func TestParseOBJIndexForms(t *testing.T) {
	obj := []byte(`v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0
vn 0 0 1
f 1/1/1 2/1/1 3/1/1
f -3 -2 -1
`)
	m, err := parseOBJ(obj)
	if err != nil {
		t.Fatalf("parseOBJ: %v", err)
	}
	if got := m.TriangleCount(); got != 2 {
		t.Errorf("TriangleCount = %d, want 2", got)
	}
}

func TestParseOBJRejectsBadIndex(t *testing.T) {
	if _, err := parseOBJ([]byte("v 0 0 0\nf 1 2 3\n")); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
	if _, err := parseOBJ([]byte("v 0 0 0\nf 0 0 0\n")); err == nil {
		t.Fatal("expected error for zero index")
	}
}

// threeMFArchive wraps a model document in a minimal OPC container.
func threeMFArchive(t *testing.T, modelPath, modelXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(modelPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(modelXML)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func threeMFCubeXML(s float64) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0"?><model unit="millimeter" xmlns="http://schemas.microsoft.com/3dmanufacturing/core/2015/02"><resources><object id="1" type="model"><mesh><vertices>`)
	for _, v := range cubeVerts(s, Vec3{}) {
		fmt.Fprintf(&sb, `<vertex x="%g" y="%g" z="%g"/>`, v.X, v.Y, v.Z)
	}
	sb.WriteString(`</vertices><triangles>`)
	for _, f := range cubeFaces(0) {
		fmt.Fprintf(&sb, `<triangle v1="%d" v2="%d" v3="%d"/>`, f[0], f[1], f[2])
	}
	sb.WriteString(`</triangles></mesh></object></resources></model>`)
	return sb.String()
}

func TestParse3MF(t *testing.T) {
	data := threeMFArchive(t, "3D/3dmodel.model", threeMFCubeXML(30))
	m, err := parse3MF(data)
	if err != nil {
		t.Fatalf("parse3MF: %v", err)
	}
	if !m.IsWatertight() {
		t.Error("cube should be watertight")
	}
	approx(t, "Volume", m.Volume(), 27000, 1e-6)
}

func TestParse3MFFallbackModelPath(t *testing.T) {
	data := threeMFArchive(t, "3D/custom.model", threeMFCubeXML(10))
	m, err := parse3MF(data)
	if err != nil {
		t.Fatalf("parse3MF: %v", err)
	}
	approx(t, "Volume", m.Volume(), 1000, 1e-6)
}

func TestParse3MFRejectsBadContainer(t *testing.T) {
	if _, err := parse3MF([]byte("not a zip")); err == nil {
		t.Fatal("expected error for non-zip input")
	}
	empty := threeMFArchive(t, "Metadata/thumb.png", "x")
	if _, err := parse3MF(empty); err == nil {
		t.Fatal("expected error when no model part exists")
	}
	noMesh := threeMFArchive(t, "3D/3dmodel.model", `<model><resources/></model>`)
	if _, err := parse3MF(noMesh); err == nil {
		t.Fatal("expected error for model without meshes")
	}
}

func TestFloat32RoundtripPrecision(t *testing.T) {
	// STL stores float32; the parser widens to float64 without introducing
	// drift beyond float32 resolution.
	v := float64(math.Float32frombits(math.Float32bits(float32(123.456))))
	m, err := NewTriangleMesh(
		[]Vec3{{0, 0, 0}, {v, 0, 0}, {0, v, 0}},
		[][3]int{{0, 1, 2}},
	)
	if err != nil {
		t.Fatal(err)
	}
	x, y, _ := m.BoundingBox()
	approx(t, "bbox x", x, 123.456, 1e-3)
	approx(t, "bbox y", y, 123.456, 1e-3)
}
