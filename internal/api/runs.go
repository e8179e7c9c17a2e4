package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/crucible/internal/model"
	"github.com/seantiz/crucible/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// listRunsResponse wraps the paginated list response.
type listRunsResponse struct {
	Runs   []*model.Run `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// attemptWithErrors is one attempt plus its captured phase errors.
type attemptWithErrors struct {
	*model.Attempt
	Errors []model.AttemptError `json:"errors,omitempty"`
}

// listAttemptsResponse is the JSON response for GET /v1/runs/:id/attempts.
type listAttemptsResponse struct {
	RunID    string              `json:"run_id"`
	Attempts []attemptWithErrors `json:"attempts"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, total, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	if runs == nil {
		runs = []*model.Run{}
	}

	s.writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run for attempts", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	attempts, err := s.store.ListAttempts(r.Context(), id)
	if err != nil {
		s.logger.Error("list attempts", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}

	out := make([]attemptWithErrors, 0, len(attempts))
	for _, a := range attempts {
		item := attemptWithErrors{Attempt: a}
		if a.ErrorCount > 0 {
			errs, err := s.store.GetAttemptErrors(r.Context(), a.ID)
			if err != nil {
				s.logger.Error("get attempt errors", "attempt_id", a.ID, "error", err)
				s.writeError(w, http.StatusInternalServerError, "failed to get attempt errors")
				return
			}
			item.Errors = errs
		}
		out = append(out, item)
	}

	s.writeJSON(w, http.StatusOK, listAttemptsResponse{
		RunID:    id,
		Attempts: out,
	})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
