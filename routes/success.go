package routes

import (
	"net/http"

	"hlsworker/logger"
	"hlsworker/success"
)

// SuccessQueryHandler handles queries for the latest published run of a
// video. DELETE forgets the record so a re-upload is reported afresh.
func SuccessQueryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	videoID := r.URL.Query().Get("video")
	if videoID == "" {
		http.Error(w, "video parameter required", http.StatusBadRequest)
		return
	}

	if r.Method == http.MethodDelete {
		if err := success.DeleteSuccess(videoID); err != nil {
			logger.Errorf("Failed to delete success record for video %s: %v", videoID, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		logger.Infof("Deleted success record for video %s", videoID)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	record, err := success.GetSuccess(videoID)
	if err != nil {
		logger.Errorf("Failed to query success for video %s: %v", videoID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if record == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"video":   videoID,
			"status":  "not_found",
			"message": "No success record found for this video",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"video":  videoID,
		"status": "success",
		"record": record,
	})
}

// SuccessListHandler handles listing all success records (admin endpoint)
func SuccessListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := success.ListSuccessRecords()
	if err != nil {
		logger.Errorf("Failed to list success records: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"successes": records,
		"count":     len(records),
	})
}
