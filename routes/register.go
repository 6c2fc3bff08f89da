package routes

import (
	"encoding/json"
	"net/http"

	"m3u8conv/credentials"
	"m3u8conv/logger"
	"m3u8conv/models"
)

// RegisterCredentialsHandler stores a publish target and returns the key that names it
func RegisterCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Register credentials request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	credsBody := make(map[string]string)
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&credsBody); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := credentials.Validate(credsBody); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := credentials.Register(credsBody)
	if err != nil {
		logger.Errorf("Failed to register credentials: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to store credentials")
		return
	}

	logger.Infof("Registered %s publish target", credsBody["type"])
	writeJSON(w, http.StatusOK, models.CredentialsResponse{AccessKey: key})
}
