package kernel

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// parseOBJ parses wavefront OBJ geometry: v and f statements. Texture and
// normal indices in face tuples are ignored; polygon faces are fan
// triangulated.
func parseOBJ(data []byte) (*TriangleMesh, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var verts []Vec3
	var faces [][3]int

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: malformed vertex", lineNo)
			}
			v, err := parseVec3(fields[1], fields[2], fields[3])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			verts = append(verts, v)
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face with %d vertices", lineNo, len(fields)-1)
			}
			idx := make([]int, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				i, err := objIndex(tok, len(verts))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				idx = append(idx, i)
			}
			for i := 1; i+1 < len(idx); i++ {
				faces = append(faces, [3]int{idx[0], idx[i], idx[i+1]})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewTriangleMesh(verts, faces)
}

// objIndex resolves a face vertex token ("7", "7/1", "7//3", "-1") to a
// zero-based vertex index. Negative indices are relative to the current
// vertex count.
func objIndex(tok string, nVerts int) (int, error) {
	if i := strings.IndexByte(tok, '/'); i >= 0 {
		tok = tok[:i]
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("bad face index %q: %w", tok, err)
	}
	if n < 0 {
		n = nVerts + n + 1
	}
	if n < 1 || n > nVerts {
		return 0, fmt.Errorf("face index %d out of range (1..%d)", n, nVerts)
	}
	return n - 1, nil
}
