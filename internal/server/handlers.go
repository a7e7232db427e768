package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/Dicklesworthstone/hostprobe/internal/errors"
)

// HealthResponse is returned by /health and /ready.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Timestamp: time.Now().UTC()})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()

	if !ready {
		respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "not ready", Timestamp: time.Now().UTC()})
		return
	}
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ready", Timestamp: time.Now().UTC()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(r.Context())
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.SystemSummary(r.Context())
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (s *Server) handleDisks(w http.ResponseWriter, r *http.Request) {
	disks, err := s.svc.Disks(r.Context())
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, disks)
}

func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	procs, err := s.svc.Processes(r.Context())
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, procs)
}

func (s *Server) handleProcessHandles(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "pid")
	pid, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, string(apperrors.ErrCodeInvalidRequest),
			"pid must be an unsigned 32-bit integer", false, map[string]any{"pid": raw})
		return
	}
	hs, err := s.svc.ProcessHandles(r.Context(), uint32(pid))
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, hs)
}
