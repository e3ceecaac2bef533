// Package health provides health monitoring and the metrics endpoint.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker reports whether a dependency is reachable.
type Checker interface {
	Health(ctx context.Context) error
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	checkers map[string]Checker
	server   *http.Server
}

// NewServer creates a new health server. checkers maps dependency names
// (e.g. "database") to their health probes.
func NewServer(checkers map[string]Checker, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		checkers: checkers,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	report := make(map[string]string, len(s.checkers))

	for name, c := range s.checkers {
		if err := c.Health(r.Context()); err != nil {
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			report[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}
