package routes

import (
	"net/http"

	"hlsworker/failures"
	"hlsworker/logger"
)

// FailureQueryHandler handles queries for the latest failure of a video
func FailureQueryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	videoID := r.URL.Query().Get("video")
	if videoID == "" {
		http.Error(w, "video parameter required", http.StatusBadRequest)
		return
	}

	record, err := failures.GetFailure(videoID)
	if err != nil {
		logger.Errorf("Failed to query failure for video %s: %v", videoID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if record == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"video":   videoID,
			"status":  "not_found",
			"message": "No failure recorded for this video",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"video":  videoID,
		"status": "failed",
		"record": record,
	})
}

// FailureListHandler handles listing all failures (admin endpoint)
func FailureListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	failuresList, err := failures.ListFailures()
	if err != nil {
		logger.Errorf("Failed to list failures: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"failures": failuresList,
		"count":    len(failuresList),
	})
}
