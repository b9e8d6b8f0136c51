package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jobsonar/jobsonar/internal/discovery"
	"github.com/jobsonar/jobsonar/internal/registry"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

type startRunRequest struct {
	UserID      string   `json:"user_id"`
	SourceIDs   []string `json:"source_ids"`
	TriggeredBy string   `json:"triggered_by"`
}

// startRun handles POST /v1/runs. A run is accepted per user at a time:
// a second request while one is active returns 409 with the active run id.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" {
		writeError(s.logger, w, http.StatusBadRequest, "user_id is required")
		return
	}
	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "manual"
	}

	run, err := s.controller.Start(r.Context(), req.UserID, req.SourceIDs, triggeredBy)
	if err != nil {
		switch {
		case discovery.IsConflict(err):
			writeError(s.logger, w, http.StatusConflict, err.Error())
		case isBadRequest(err):
			writeError(s.logger, w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("start run failed", zap.String("user_id", req.UserID), zap.Error(err))
			writeError(s.logger, w, http.StatusInternalServerError, "failed to start run")
		}
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, map[string]any{"run": run})
}

// stopRun handles POST /v1/runs/{run_id}/stop. The stop is cooperative:
// the response acknowledges the request while in-flight fetches drain.
func (s *Server) stopRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if err := s.controller.Stop(r.Context(), runID); err != nil {
		if discovery.IsNotFound(err) {
			writeError(s.logger, w, http.StatusNotFound, "no active run "+runID)
			return
		}
		writeError(s.logger, w, http.StatusInternalServerError, "failed to stop run")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"run_id": runID, "status": "stopping"})
}

// ownerStatus handles GET /v1/status?user_id=. It reports whether the user
// has an active run plus the most recent run snapshot.
func (s *Server) ownerStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(s.logger, w, http.StatusBadRequest, "user_id is required")
		return
	}
	status, err := s.controller.Status(r.Context(), userID)
	if err != nil {
		s.logger.Error("status lookup failed", zap.String("user_id", userID), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to load status")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, status)
}

// getRun handles GET /v1/runs/{run_id}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.controller.Get(r.Context(), runID)
	if err != nil {
		if discovery.IsNotFound(err) {
			writeError(s.logger, w, http.StatusNotFound, "run not found")
			return
		}
		writeError(s.logger, w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"run": run})
}

// listRuns handles GET /v1/runs?user_id=&status=&limit=.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(s.logger, w, http.StatusBadRequest, "user_id is required")
		return
	}
	status := discovery.RunStatus(r.URL.Query().Get("status"))
	if status != "" && !validStatusFilter(status) {
		writeError(s.logger, w, http.StatusBadRequest, "invalid status filter")
		return
	}
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(s.logger, w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > maxRunLimit {
			parsed = maxRunLimit
		}
		limit = parsed
	}

	runs, err := s.controller.List(r.Context(), userID, status, limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.String("user_id", userID), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []discovery.Run{}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"runs": runs})
}

func validStatusFilter(status discovery.RunStatus) bool {
	switch status {
	case discovery.RunStatusPending, discovery.RunStatusRunning,
		discovery.RunStatusCompleted, discovery.RunStatusStopped, discovery.RunStatusFailed:
		return true
	default:
		return false
	}
}

// isBadRequest classifies controller start failures the caller can fix,
// currently just unknown source ids from catalog resolution.
func isBadRequest(err error) bool {
	var unknown *registry.UnknownSourceError
	return errors.As(err, &unknown)
}
