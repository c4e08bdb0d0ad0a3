package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/MeKo-Tech/docsplit/internal/batch"
	"github.com/MeKo-Tech/docsplit/internal/version"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// jobsHandler lists every known job, newest first.
func (s *Server) jobsHandler(w http.ResponseWriter, r *http.Request) {
	jobs := s.runner.Jobs()
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	writeJSON(w, http.StatusOK, JobsResponse{Jobs: jobs, Count: len(jobs)})
}

// startJobHandler starts a batch over a directory of scanned pages. The
// job runs detached from the request context.
func (s *Server) startJobHandler(w http.ResponseWriter, r *http.Request) {
	var req StartJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Directory == "" {
		s.writeErrorResponse(w, "request must carry a directory", http.StatusBadRequest)
		return
	}

	source, err := batch.NewDirectorySource(req.Directory)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := s.runner.Start(context.Background(), source)
	if err != nil {
		if errors.Is(err, batch.ErrSourceBusy) {
			s.writeErrorResponse(w, err.Error(), http.StatusConflict)
			return
		}
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	jobsStartedTotal.Inc()
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

// jobHandler returns the snapshot for one job.
func (s *Server) jobHandler(w http.ResponseWriter, r *http.Request) {
	status, err := s.runner.Job(r.PathValue("id"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// cancelJobHandler requests cooperative cancellation of a job.
func (s *Server) cancelJobHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.runner.Cancel(id); err != nil {
		s.writeJobError(w, err)
		return
	}
	status, err := s.runner.Job(id)
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, status)
}

func (s *Server) writeJobError(w http.ResponseWriter, err error) {
	if errors.Is(err, batch.ErrUnknownJob) {
		s.writeErrorResponse(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, ErrorResponse{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode response", "error", err)
	}
}
