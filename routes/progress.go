package routes

import (
	"errors"
	"net/http"

	"m3u8conv/job"
	"m3u8conv/logger"
)

// ProgressHandler returns the current snapshot of a conversion
func (s *Server) ProgressHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.PathValue("id")
	snapshot, err := s.deps.Reporter.Snapshot(id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Conversion not found")
			return
		}
		logger.Errorf("Failed to read progress for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// pollers should never see a cached snapshot
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, snapshot)
}
