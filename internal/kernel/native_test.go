package kernel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNativeKernelLoad(t *testing.T) {
	k := New(nil)
	cube := cubeMesh(t, 10)

	cases := []struct {
		name string
		data []byte
		hint string
	}{
		{"stl", binarySTL(t, cube), "stl"},
		{"obj", []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"), "obj"},
		{"3mf", threeMFArchive(t, "3D/3dmodel.model", threeMFCubeXML(10)), "3mf"},
	}
	for _, tc := range cases {
		m, err := k.Load(context.Background(), tc.data, tc.hint)
		if err != nil {
			t.Errorf("%s: Load: %v", tc.name, err)
			continue
		}
		if m.TriangleCount() == 0 {
			t.Errorf("%s: empty mesh", tc.name)
		}
	}
}

func TestNativeKernelLoadErrors(t *testing.T) {
	k := New(nil)

	var pe *ParseError
	_, err := k.Load(context.Background(), []byte("garbage"), "stl")
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ParseError", err)
	}

	_, err = k.Load(context.Background(), []byte("whatever"), "step")
	if !errors.As(err, &pe) {
		t.Fatalf("unknown hint err = %v, want *ParseError", err)
	}
}

func TestNativeKernelLoadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil).Load(ctx, binarySTL(t, cubeMesh(t, 1)), "stl")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNativeKernelTessellate(t *testing.T) {
	stl := binarySTL(t, cubeMesh(t, 40))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.URL.Query().Get("format"); got != "step" {
			t.Errorf("format = %q, want step", got)
		}
		w.Write(stl)
	}))
	defer srv.Close()

	k := New(NewTessellator(TessellatorConfig{Endpoint: srv.URL, Timeout: 5 * time.Second}))
	m, err := k.Tessellate(context.Background(), []byte("ISO-10303-21;"), "step")
	if err != nil {
		t.Fatalf("Tessellate: %v", err)
	}
	approx(t, "volume", m.Volume(), 64000, 1e-3)
}

func TestNativeKernelTessellateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported assembly", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	k := New(NewTessellator(TessellatorConfig{Endpoint: srv.URL}))
	var te *TessellationError
	_, err := k.Tessellate(context.Background(), []byte("x"), "step")
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TessellationError", err)
	}
}

func TestNativeKernelTessellateBadOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not an stl"))
	}))
	defer srv.Close()

	k := New(NewTessellator(TessellatorConfig{Endpoint: srv.URL}))
	var te *TessellationError
	_, err := k.Tessellate(context.Background(), []byte("x"), "step")
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TessellationError", err)
	}
}

func TestDisabledTessellator(t *testing.T) {
	k := New(NewTessellator(TessellatorConfig{}))
	var te *TessellationError
	_, err := k.Tessellate(context.Background(), []byte("x"), "step")
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TessellationError", err)
	}
}
