package routes

import (
	"fmt"
	"net/http"

	"hlsworker/logger"
	"hlsworker/runs"
)

// StatusHandler returns one run by ?run= or, without it, every run the
// tracker remembers along with the concurrency figures.
func StatusHandler(t *runs.Tracker, d *runs.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debugf("Run status request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		runID := r.URL.Query().Get("run")
		if runID == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"active": t.ActiveCount(),
				"limit":  d.Limit(),
				"runs":   t.List(),
			})
			return
		}

		status, ok := t.Get(runID)
		if !ok {
			http.Error(w, fmt.Sprintf("Run %s not found", runID), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}
