package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	TotalRuns        int            `json:"total_runs"`
	TotalAttempts    int            `json:"total_attempts"`
	AttemptsByStatus map[string]int `json:"attempts_by_status"`
	PassRate         float64        `json:"pass_rate"`
	AvgAttemptMS     float64        `json:"avg_attempt_ms"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetRunStats(r.Context())
	if err != nil {
		s.logger.Error("get run stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		TotalRuns:        stats.TotalRuns,
		TotalAttempts:    stats.TotalAttempts,
		AttemptsByStatus: stats.AttemptsByStatus,
		PassRate:         stats.PassRate,
		AvgAttemptMS:     stats.AvgAttemptMS,
	})
}
