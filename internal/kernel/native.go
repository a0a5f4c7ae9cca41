package kernel

import (
	"context"
	"fmt"
)

// NativeKernel answers mesh queries with the in-process implementation and
// hands BREP tessellation to a Tessellator.
type NativeKernel struct {
	tess Tessellator
}

// New creates a kernel with the given tessellator. A nil tessellator
// rejects all CAD input.
func New(tess Tessellator) *NativeKernel {
	if tess == nil {
		tess = disabledTessellator{}
	}
	return &NativeKernel{tess: tess}
}

// Load implements Kernel.
func (k *NativeKernel) Load(ctx context.Context, data []byte, hint string) (Mesh, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		m   *TriangleMesh
		err error
	)
	switch hint {
	case "stl":
		m, err = parseSTL(data)
	case "obj":
		m, err = parseOBJ(data)
	case "3mf":
		m, err = parse3MF(data)
	default:
		err = fmt.Errorf("no mesh loader for format %q", hint)
	}
	if err != nil {
		return nil, &ParseError{Hint: hint, Err: err}
	}
	return m, nil
}

// Tessellate implements Kernel: converts BREP bytes to an STL
// approximation through the tessellator, then loads it as a mesh.
func (k *NativeKernel) Tessellate(ctx context.Context, data []byte, hint string) (Mesh, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stlBytes, err := k.tess.Tessellate(ctx, data, hint)
	if err != nil {
		return nil, &TessellationError{Hint: hint, Err: err}
	}

	m, err := parseSTL(stlBytes)
	if err != nil {
		return nil, &TessellationError{Hint: hint, Err: fmt.Errorf("tessellator output: %w", err)}
	}
	return m, nil
}
