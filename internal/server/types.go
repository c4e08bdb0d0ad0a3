// Package server exposes the batch runner's job status surface over HTTP:
// job listing and inspection, cancellation, live WebSocket updates and
// Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/MeKo-Tech/docsplit/internal/batch"
)

// jobRunner is what the server needs from the batch runner.
type jobRunner interface {
	Start(ctx context.Context, source batch.Source) (*batch.Job, error)
	Jobs() []batch.Status
	Job(id string) (batch.Status, error)
	Cancel(id string) error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	runner     jobRunner
	corsOrigin string
	timeoutSec int
}

// Config holds server configuration.
type Config struct {
	Host       string
	Port       int
	CORSOrigin string
	TimeoutSec int
}

// Addr returns the listen address.
func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// JobsResponse is the /jobs payload.
type JobsResponse struct {
	Jobs  []batch.Status `json:"jobs"`
	Count int            `json:"count"`
}

// StartJobRequest is the POST /jobs payload.
type StartJobRequest struct {
	Directory string `json:"directory"`
}

// ErrorResponse is the error payload shared by all endpoints.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewServer creates a status server over a batch runner.
func NewServer(cfg Config, runner *batch.Runner) *Server {
	return &Server{
		runner:     runner,
		corsOrigin: cfg.CORSOrigin,
		timeoutSec: cfg.TimeoutSec,
	}
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("GET /jobs", s.corsMiddleware(s.jobsHandler))
	mux.HandleFunc("POST /jobs", s.corsMiddleware(s.startJobHandler))
	mux.HandleFunc("GET /jobs/{id}", s.corsMiddleware(s.jobHandler))
	mux.HandleFunc("POST /jobs/{id}/cancel", s.corsMiddleware(s.cancelJobHandler))
	mux.HandleFunc("GET /jobs/{id}/ws", s.jobWebSocketHandler)
	mux.Handle("GET /metrics", metricsHandler())
}
