package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bl4ck0w1/profilynx/pkg/models"
)

type scanRequest struct {
	Username  string   `json:"username"`
	Platforms []string `json:"platforms,omitempty"`
}

type taskRequest struct {
	Username  string   `json:"username"`
	Platforms []string `json:"platforms,omitempty"`
	Priority  string   `json:"priority,omitempty"`
}

type batchRequest struct {
	Usernames []string `json:"usernames"`
	Priority  string   `json:"priority,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		respondError(w, http.StatusBadRequest, "username must not be empty")
		return
	}
	if s.coordinator == nil {
		respondError(w, http.StatusServiceUnavailable, models.ErrScannerNotReady.Error())
		return
	}

	result, err := s.coordinator.RunScan(r.Context(), req.Username, req.Platforms)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrUnknownPlatform):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, models.ErrScannerNotReady):
			respondError(w, http.StatusServiceUnavailable, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if s.analyzer != nil {
		s.analyzer.Analyze(r.Context(), result)
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	if s.coordinator == nil {
		respondError(w, http.StatusServiceUnavailable, models.ErrScannerNotReady.Error())
		return
	}
	cat := s.coordinator.Catalog()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":      cat.Len(),
		"categories": cat.Categories(),
		"platforms":  cat.All(),
	})
}

// handleStats aggregates the component counters into one snapshot. The
// prometheus endpoint stays the canonical source; this is the human view.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{"api": s.GetStats()}
	if s.coordinator != nil {
		stats["coordinator"] = s.coordinator.GetStats()
	}
	if s.analyzer != nil {
		stats["analyzer"] = s.analyzer.GetStats()
	}
	if s.orchestrator != nil {
		stats["orchestrator"] = s.orchestrator.GetStats()
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	priority, ok := models.ParsePriority(req.Priority)
	if !ok {
		respondError(w, http.StatusBadRequest, "priority must be low, medium or high")
		return
	}
	if s.orchestrator == nil {
		respondError(w, http.StatusServiceUnavailable, models.ErrScannerNotReady.Error())
		return
	}

	taskID, err := s.orchestrator.Submit(req.Username, req.Platforms, priority)
	if err != nil {
		s.respondSubmitError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		respondError(w, http.StatusServiceUnavailable, models.ErrScannerNotReady.Error())
		return
	}
	task, err := s.orchestrator.Status(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, models.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		respondError(w, http.StatusServiceUnavailable, models.ErrScannerNotReady.Error())
		return
	}
	taskID := chi.URLParam(r, "id")
	cancelled, err := s.orchestrator.Cancel(taskID)
	if err != nil {
		if errors.Is(err, models.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !cancelled {
		respondError(w, http.StatusConflict, "task is not pending")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"task_id": taskID, "status": "cancelled"})
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	priority, ok := models.ParsePriority(req.Priority)
	if !ok {
		respondError(w, http.StatusBadRequest, "priority must be low, medium or high")
		return
	}
	if s.orchestrator == nil {
		respondError(w, http.StatusServiceUnavailable, models.ErrScannerNotReady.Error())
		return
	}

	jobID, err := s.orchestrator.SubmitBatch(req.Usernames, priority)
	if err != nil {
		s.respondSubmitError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		respondError(w, http.StatusServiceUnavailable, models.ErrScannerNotReady.Error())
		return
	}
	job, err := s.orchestrator.Job(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) respondSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrQueueFull):
		respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, models.ErrQueueClosed):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
