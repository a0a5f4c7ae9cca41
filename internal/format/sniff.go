package format

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// Sniff identifies the format from file content alone. Returns Unknown when
// no signature matches.
func Sniff(data []byte) Format {
	if len(data) == 0 {
		return Unknown
	}

	// 3MF is an OPC (zip) container.
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return ThreeMF
	}

	// STEP part 21 files open with an ISO-10303-21 header record.
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.Contains(head, []byte("ISO-10303-21")) {
		return STEP
	}

	// IGES fixed-format lines carry a section letter in column 73.
	if isIGES(data) {
		return IGES
	}

	if isBinarySTL(data) {
		return STL
	}
	if isASCIISTL(data) {
		return STL
	}
	if isOBJ(data) {
		return OBJ
	}
	return Unknown
}

// isBinarySTL checks the fixed layout: 80-byte header, uint32 triangle
// count, then 50 bytes per triangle. The arithmetic check distinguishes it
// from arbitrary binaries and from ASCII files that happen to be long.
func isBinarySTL(data []byte) bool {
	if len(data) < 84 {
		return false
	}
	count := binary.LittleEndian.Uint32(data[80:84])
	return int64(len(data)) == 84+int64(count)*50
}

// isASCIISTL matches the "solid <name>" header followed by facet records.
func isASCIISTL(data []byte) bool {
	head := strings.ToLower(string(trimLeadingSpace(data, 2048)))
	return strings.HasPrefix(head, "solid") && strings.Contains(head, "facet")
}

// isOBJ looks for wavefront geometry statements at line starts.
func isOBJ(data []byte) bool {
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	sawVertex := false
	for _, line := range strings.Split(string(sample), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "v", "vn", "vt":
			sawVertex = true
		case "f", "o", "g", "mtllib", "usemtl", "s":
			// Plausible OBJ statements; keep scanning for a vertex.
		default:
			return false
		}
	}
	return sawVertex
}

// isIGES checks the S-section marker of the fixed 80-column format.
func isIGES(data []byte) bool {
	if len(data) < 73 {
		return false
	}
	// First line must be printable ASCII up to the section column.
	for _, b := range data[:72] {
		if b != '\t' && (b < 0x20 || b > 0x7e) {
			return false
		}
	}
	return data[72] == 'S'
}

func trimLeadingSpace(data []byte, max int) []byte {
	i := 0
	for i < len(data) && (data[i] == ' ' || data[i] == '\t' || data[i] == '\r' || data[i] == '\n') {
		i++
	}
	end := i + max
	if end > len(data) {
		end = len(data)
	}
	return data[i:end]
}
