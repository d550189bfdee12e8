package redirect

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// healthResponse is the JSON response for the health check endpoint
type healthResponse struct {
	Status string `json:"status"`
}

// handleHealth handles health check requests
func (l *Listener) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		// Best-effort: headers/status may already be written.
		slog.Error("failed to encode health response", "error", err)
	}
}
