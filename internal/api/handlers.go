package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"runboat/internal/registry"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BuildList{Builds: s.controller.Builds()})
}

func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, ok := s.controller.Build(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", registry.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.controller.Activity(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.writeBuild(w, id, http.StatusAccepted)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.controller.Retry(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.writeBuild(w, id, http.StatusAccepted)
}

// writeBuild answers with the current view of a build after a mutation.
func (s *Server) writeBuild(w http.ResponseWriter, id string, status int) {
	view, ok := s.controller.Build(id)
	if !ok {
		// Removed between the mutation and the read.
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", registry.ErrNotFound, id))
		return
	}
	writeJSON(w, status, view)
}

func (s *Server) handleController(w http.ResponseWriter, r *http.Request) {
	limits := s.controller.Limits()
	status := ControllerStatus{
		Running:          s.controller.IsRunning(),
		MaxStarted:       limits.MaxStarted,
		IdleTimeout:      limits.IdleTimeout.String(),
		RetryFailedAfter: limits.RetryFailedAfter.String(),
		QueuedEvents:     s.controller.QueuedEvents(),
	}
	if pass, ok := s.controller.LastPass(); ok {
		status.LastPass = &pass
	}
	writeJSON(w, http.StatusOK, status)
}
