package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"hlsworker/auth"
	"hlsworker/events"
	"hlsworker/logger"
	"hlsworker/pipeline"
	"hlsworker/runs"
)

// EventResponse is returned for every decoded event.
type EventResponse struct {
	Status    string          `json:"status"`
	RunID     string          `json:"run_id,omitempty"`
	State     pipeline.State  `json:"state,omitempty"`
	Reason    pipeline.Reason `json:"reason,omitempty"`
	Variants  []string        `json:"variants,omitempty"`
	MasterURL string          `json:"master_url,omitempty"`
}

// EventsHandler receives storage notifications and runs the pipeline for
// them synchronously. Once an event is decoded the answer is always 2xx,
// whatever the outcome, so the event source does not redeliver it.
func EventsHandler(d *runs.Dispatcher, v *auth.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debugf("Event request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if _, err := v.VerifyRequest(r); err != nil {
			logger.Warnf("Rejected event from %s: %v", r.RemoteAddr, err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ev, err := events.Decode(r)
		if err != nil {
			logger.Warnf("Failed to decode event: %v", err)
			http.Error(w, "Malformed event", http.StatusBadRequest)
			return
		}

		out, err := d.Dispatch(r.Context(), ev)
		if errors.Is(err, runs.ErrBusy) {
			writeJSON(w, http.StatusOK, EventResponse{Status: "dropped"})
			return
		}

		status := "completed"
		if out.Aborted() {
			status = "aborted"
		}
		writeJSON(w, http.StatusOK, EventResponse{
			Status:    status,
			RunID:     out.RunID,
			State:     out.State,
			Reason:    out.Reason,
			Variants:  out.Variants,
			MasterURL: out.MasterURL,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}
