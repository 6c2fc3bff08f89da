package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"m3u8conv/engine"
	"m3u8conv/job"
	"m3u8conv/logger"
	"m3u8conv/models"
	"m3u8conv/playlist"
)

const maxJSONBody = 64 << 10

// ErrValidation marks request problems reported to the client as 400
var ErrValidation = errors.New("validation error")

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// validationMessage strips the sentinel prefix for the response body
func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")
}

// ConvertHandler accepts a remote playlist URL and starts a conversion
func (s *Server) ConvertHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Convert request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodPost {
		logger.Warnf("Invalid method for convert endpoint: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.ConvertRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		s.deps.Metrics.Rejected("invalid_body")
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !playlist.IsRemote(req.M3U8URL) {
		s.deps.Metrics.Rejected("invalid_url")
		writeError(w, http.StatusBadRequest, "Invalid or missing m3u8Url")
		return
	}

	spec := job.Spec{
		Source:      job.Source{Kind: engine.SourceRemote, Locator: strings.TrimSpace(req.M3U8URL)},
		CallbackURL: req.CallbackURL,
		PublishKeys: req.PublishKeys,
	}
	if err := s.validateExtras(spec); err != nil {
		s.deps.Metrics.Rejected("invalid_options")
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	s.submit(w, spec, nil)
}

// validateExtras checks the optional callback URL and publish keys
func (s *Server) validateExtras(spec job.Spec) error {
	if spec.CallbackURL != "" {
		u, err := url.Parse(spec.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return validationError("callbackUrl must be an absolute http(s) URL")
		}
	}
	for _, key := range spec.PublishKeys {
		if s.deps.LookupPublishKey == nil {
			return validationError("publishing is not enabled")
		}
		if _, err := s.deps.LookupPublishKey(key); err != nil {
			return validationError("unknown publish key %q", key)
		}
	}
	return nil
}

// submit creates the job, starts it, and writes the 202 response
func (s *Server) submit(w http.ResponseWriter, spec job.Spec, summary *models.PlaylistSummary) {
	rec, err := s.deps.Registry.Create(spec)
	if err != nil {
		logger.Errorf("Failed to create job: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error occurred during conversion")
		return
	}
	s.deps.Metrics.Submitted(string(spec.Source.Kind))

	if err := s.deps.Worker.Start(s.deps.BaseContext, rec.ID); err != nil {
		if !errors.Is(err, job.ErrSetup) {
			logger.Errorf("Failed to start job %s: %v", rec.ID, err)
			writeError(w, http.StatusInternalServerError, "Internal server error occurred during conversion")
			return
		}
		// the job record carries the setup failure for pollers
	}

	status := job.StatusStarting
	if current, err := s.deps.Registry.Get(rec.ID); err == nil {
		status = current.Status
	}

	writeJSON(w, http.StatusAccepted, models.ConvertResponse{
		ConversionID: rec.ID,
		Status:       string(status),
		Playlist:     summary,
	})
}
