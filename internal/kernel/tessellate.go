package kernel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/maliev/geometry-service/internal/logging"
)

// Tessellator converts BREP CAD bytes into STL bytes. The robust
// tessellation math lives in an external service; this process only
// transports bytes to it.
type Tessellator interface {
	Tessellate(ctx context.Context, data []byte, hint string) ([]byte, error)
}

// TessellatorConfig configures the HTTP tessellation client.
type TessellatorConfig struct {
	Endpoint string // empty disables tessellation
	Timeout  time.Duration
}

// NewTessellator creates a tessellator based on configuration.
func NewTessellator(cfg TessellatorConfig) Tessellator {
	log := logging.Component("tessellator")
	if cfg.Endpoint == "" {
		log.Info("tessellation disabled, CAD formats will be rejected")
		return disabledTessellator{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	log.Info("using HTTP tessellator", "endpoint", cfg.Endpoint)
	return &httpTessellator{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// httpTessellator POSTs BREP bytes to the tessellation service and reads
// back an STL approximation.
type httpTessellator struct {
	endpoint string
	client   *http.Client
}

func (t *httpTessellator) Tessellate(ctx context.Context, data []byte, hint string) ([]byte, error) {
	url := fmt.Sprintf("%s/tessellate?format=%s", t.endpoint, hint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "model/stl")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call tessellation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("tessellation service returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tessellated mesh: %w", err)
	}
	return out, nil
}

// disabledTessellator rejects every request.
type disabledTessellator struct{}

func (disabledTessellator) Tessellate(context.Context, []byte, string) ([]byte, error) {
	return nil, errors.New("no tessellation endpoint configured")
}
