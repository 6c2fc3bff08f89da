package routes

import (
	"net/http"

	"m3u8conv/failures"
	"m3u8conv/logger"
)

// FailureQueryHandler handles queries for failed conversions
func FailureQueryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter required")
		return
	}

	record, err := failures.GetFailure(id)
	if err != nil {
		logger.Errorf("Failed to query failure for conversion %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if record == nil {
		// no failure on file; the job either succeeded or aged out
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":      id,
			"status":  "not_found",
			"message": "No failure recorded for this conversion",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          record.ID,
		"status":      "failed",
		"timestamp":   record.Timestamp,
		"error":       record.Error,
		"source":      record.Source,
		"source_kind": record.SourceKind,
		"progress":    record.Progress,
	})
}

// FailureListHandler lists the retained failure history, newest first
func FailureListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	failuresList, err := failures.ListFailures()
	if err != nil {
		logger.Errorf("Failed to list failures: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"failures": failuresList,
		"count":    len(failuresList),
	})
}
