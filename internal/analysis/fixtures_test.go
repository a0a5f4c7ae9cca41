package analysis

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

// threeMFCube packages a closed cube of side s into a minimal 3MF container.
func threeMFCube(t *testing.T, s float64) []byte {
	t.Helper()

	verts := [][3]float64{
		{0, 0, 0}, {s, 0, 0}, {s, s, 0}, {0, s, 0},
		{0, 0, s}, {s, 0, s}, {s, s, s}, {0, s, s},
	}
	faces := [][3]int{
		{0, 2, 1}, {0, 3, 2},
		{4, 5, 6}, {4, 6, 7},
		{0, 1, 5}, {0, 5, 4},
		{2, 3, 7}, {2, 7, 6},
		{0, 4, 7}, {0, 7, 3},
		{1, 2, 6}, {1, 6, 5},
	}

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0"?><model unit="millimeter"><resources><object id="1" type="model"><mesh><vertices>`)
	for _, v := range verts {
		fmt.Fprintf(&sb, `<vertex x="%g" y="%g" z="%g"/>`, v[0], v[1], v[2])
	}
	sb.WriteString(`</vertices><triangles>`)
	for _, f := range faces {
		fmt.Fprintf(&sb, `<triangle v1="%d" v2="%d" v3="%d"/>`, f[0], f[1], f[2])
	}
	sb.WriteString(`</triangles></mesh></object></resources></model>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("3D/3dmodel.model")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(sb.String())); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
