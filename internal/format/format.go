// Package format classifies uploaded 3D files and routes them to the mesh
// or CAD analysis path.
package format

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrUnsupported is returned for declared formats outside the supported set.
var ErrUnsupported = errors.New("unsupported file format")

// ErrMismatch is returned when the declared format and the file content
// disagree.
var ErrMismatch = errors.New("declared format does not match file content")

// Format identifies a supported 3D file format.
type Format int

const (
	Unknown Format = iota
	STL
	OBJ
	ThreeMF
	STEP
	IGES
)

// String returns the canonical lowercase name, which doubles as the
// kernel's format hint.
func (f Format) String() string {
	switch f {
	case STL:
		return "stl"
	case OBJ:
		return "obj"
	case ThreeMF:
		return "3mf"
	case STEP:
		return "step"
	case IGES:
		return "iges"
	default:
		return "unknown"
	}
}

// IsCAD reports whether the format is boundary-representation CAD that must
// be tessellated before metrics can be computed.
func (f Format) IsCAD() bool {
	return f == STEP || f == IGES
}

// IsMesh reports whether the format is a triangle mesh the kernel loads
// directly. Mesh units are always treated as millimeters; embedded unit
// hints are ignored by policy.
func (f Format) IsMesh() bool {
	return f == STL || f == OBJ || f == ThreeMF
}

// byExtension maps lowercase file extensions to formats.
var byExtension = map[string]Format{
	".stl":  STL,
	".obj":  OBJ,
	".3mf":  ThreeMF,
	".step": STEP,
	".stp":  STEP,
	".igs":  IGES,
	".iges": IGES,
}

// byContentType maps declared MIME types to formats.
var byContentType = map[string]Format{
	"model/stl":                       STL,
	"application/sla":                 STL,
	"application/vnd.ms-pki.stl":      STL,
	"model/obj":                       OBJ,
	"text/x-obj":                      OBJ,
	"model/3mf":                       ThreeMF,
	"application/vnd.ms-3mfdocument":  ThreeMF,
	"model/step":                      STEP,
	"application/step":                STEP,
	"application/x-step":              STEP,
	"model/iges":                      IGES,
	"application/iges":                IGES,
}

// Classify derives the declared format from the content type and file name.
// The content type wins when it names a known format; the extension is the
// fallback for generic types like application/octet-stream.
func Classify(contentType, fileName string) (Format, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if f, ok := byContentType[ct]; ok {
		return f, nil
	}

	ext := strings.ToLower(path.Ext(fileName))
	if f, ok := byExtension[ext]; ok {
		return f, nil
	}

	if ct == "" && ext == "" {
		return Unknown, fmt.Errorf("no content type or extension: %w", ErrUnsupported)
	}
	return Unknown, fmt.Errorf("content type %q, extension %q: %w", contentType, ext, ErrUnsupported)
}

// Check validates that the file content agrees with the declared format.
// Returns ErrMismatch when the bytes identify as a different supported
// format. Content that cannot be identified at all is left for the kernel
// to accept or reject as corrupt.
func Check(declared Format, data []byte) error {
	sniffed := Sniff(data)
	if sniffed == Unknown || sniffed == declared {
		return nil
	}
	return fmt.Errorf("declared %s but content looks like %s: %w", declared, sniffed, ErrMismatch)
}
