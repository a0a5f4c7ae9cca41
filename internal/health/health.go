// Package health serves the Kubernetes liveness and readiness probes.
package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Server exposes the probe endpoints.
type Server struct {
	ready func() bool
}

// NewServer creates a health server. ready reports whether the consumer is
// attached to the broker and fetching.
func NewServer(ready func() bool) *Server {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Server{ready: ready}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/geometry/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	r.Get("/geometry/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !s.ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	return r
}

// ListenAndServe runs the health server. Blocks until the server exits.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.Router())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
