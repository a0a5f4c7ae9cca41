package kernel

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

// threeMFModel mirrors the subset of the 3MF core spec the kernel needs.
// The model's unit attribute is deliberately not read: mesh input is
// treated as millimeters regardless of embedded hints.
type threeMFModel struct {
	XMLName   xml.Name `xml:"model"`
	Resources struct {
		Objects []struct {
			ID   string `xml:"id,attr"`
			Mesh *struct {
				Vertices struct {
					List []struct {
						X float64 `xml:"x,attr"`
						Y float64 `xml:"y,attr"`
						Z float64 `xml:"z,attr"`
					} `xml:"vertex"`
				} `xml:"vertices"`
				Triangles struct {
					List []struct {
						V1 int `xml:"v1,attr"`
						V2 int `xml:"v2,attr"`
						V3 int `xml:"v3,attr"`
					} `xml:"triangle"`
				} `xml:"triangles"`
			} `xml:"mesh"`
		} `xml:"object"`
	} `xml:"resources"`
}

// parse3MF reads the 3D model part out of the 3MF OPC container and merges
// all mesh objects into one indexed mesh. Disjoint objects stay disjoint
// bodies, which the body-count query then reports.
func parse3MF(data []byte) (*TriangleMesh, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open 3mf container: %w", err)
	}

	modelXML, err := readModelPart(zr)
	if err != nil {
		return nil, err
	}

	var model threeMFModel
	if err := xml.Unmarshal(modelXML, &model); err != nil {
		return nil, fmt.Errorf("parse 3mf model: %w", err)
	}

	var verts []Vec3
	var faces [][3]int
	for _, obj := range model.Resources.Objects {
		if obj.Mesh == nil {
			continue
		}
		base := len(verts)
		for _, v := range obj.Mesh.Vertices.List {
			verts = append(verts, Vec3{v.X, v.Y, v.Z})
		}
		for _, t := range obj.Mesh.Triangles.List {
			faces = append(faces, [3]int{base + t.V1, base + t.V2, base + t.V3})
		}
	}
	if len(faces) == 0 {
		return nil, fmt.Errorf("3mf model contains no mesh objects")
	}
	return NewTriangleMesh(verts, faces)
}

// readModelPart locates the model document, preferring the conventional
// 3D/3dmodel.model path.
func readModelPart(zr *zip.Reader) ([]byte, error) {
	var fallback *zip.File
	for _, f := range zr.File {
		if f.Name == "3D/3dmodel.model" {
			return readZipFile(f)
		}
		if fallback == nil && strings.HasSuffix(f.Name, ".model") {
			fallback = f
		}
	}
	if fallback != nil {
		return readZipFile(fallback)
	}
	return nil, fmt.Errorf("no model part in 3mf container")
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}
