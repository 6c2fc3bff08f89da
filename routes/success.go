package routes

import (
	"net/http"

	"m3u8conv/logger"
	"m3u8conv/success"
)

// SuccessQueryHandler handles queries for completed conversions
func SuccessQueryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter required")
		return
	}

	record, err := success.GetSuccess(id)
	if err != nil {
		logger.Errorf("Failed to query success for conversion %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if record == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":      id,
			"status":  "not_found",
			"message": "No success record found for this conversion",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          record.ID,
		"status":      "success",
		"timestamp":   record.Timestamp,
		"source":      record.Source,
		"source_kind": record.SourceKind,
		"filename":    record.Filename,
		"size_bytes":  record.SizeBytes,
		"duration_ms": record.DurationMs,
	})
}

// SuccessListHandler lists the retained success history, newest first
func SuccessListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := success.ListSuccessRecords()
	if err != nil {
		logger.Errorf("Failed to list success records: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success_records": records,
		"count":           len(records),
	})
}
