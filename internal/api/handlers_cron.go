package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"taskdash/internal/core"
)

const (
	defaultPreviewCount = 5
	maxPreviewCount     = 10
)

type cronPreviewRequest struct {
	Expression string `json:"expression"`
	From       string `json:"from,omitempty"`
	Count      int    `json:"count,omitempty"`
}

type cronPreviewResponse struct {
	Valid     bool        `json:"valid"`
	NextTimes []time.Time `json:"nextTimes,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// handleCronPreview lists the next fire times of a cron expression as the
// task form would accept it.
func (s *Server) handleCronPreview(w http.ResponseWriter, r *http.Request) {
	var req cronPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	expr := strings.TrimSpace(req.Expression)
	if expr == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "expression is required")
		return
	}
	schedule, err := core.ParseCron(expr)
	if err != nil {
		writeJSON(w, http.StatusOK, cronPreviewResponse{Valid: false, Message: "Please enter a valid cron expression."})
		return
	}

	count := req.Count
	if count <= 0 || count > maxPreviewCount {
		count = defaultPreviewCount
	}
	base := time.Now().In(s.location)
	if req.From != "" {
		if parsed, err := time.Parse(time.RFC3339, req.From); err == nil {
			base = parsed.In(s.location)
		}
	}
	writeJSON(w, http.StatusOK, cronPreviewResponse{
		Valid:     true,
		NextTimes: core.NextOccurrences(schedule, base, count),
	})
}
