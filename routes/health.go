package routes

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"m3u8conv/job"
	"m3u8conv/logger"
	"m3u8conv/success"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string       `json:"status"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
	Version   string       `json:"version"`
	GoVersion string       `json:"go_version"`
	Uptime    string       `json:"uptime"`
	StartTime string       `json:"start_time"`
	FFmpeg    FFmpegHealth `json:"ffmpeg"`
	History   string       `json:"history"`
	Jobs      JobCounts    `json:"jobs"`
}

// FFmpegHealth reports whether the remux engine can be launched
type FFmpegHealth struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// JobCounts summarizes the live registry
type JobCounts struct {
	Active   int `json:"active"`
	Finished int `json:"finished"`
}

// Global start time for uptime calculation
var startTime = time.Now()

// formatUptime formats a duration into days, hours, minutes, seconds
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

// HealthHandler reports liveness plus ffmpeg and storage availability.
// A missing ffmpeg makes the service degraded but still answers 200.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Health check request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodGet {
		logger.Warnf("Invalid method for health endpoint: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:    "OK",
		Message:   "M3U8 Converter Backend is running",
		Timestamp: time.Now(),
		Version:   getVersion(),
		GoVersion: runtime.Version(),
		Uptime:    formatUptime(time.Since(startTime)),
		StartTime: startTime.Format("2006-01-02 15:04:05 MST"),
		History:   "ok",
	}

	if s.deps.FFmpegCheck != nil {
		path, err := s.deps.FFmpegCheck()
		response.FFmpeg = FFmpegHealth{Available: err == nil, Path: path}
		if err != nil {
			response.FFmpeg.Error = "ffmpeg not found"
			response.Status = "DEGRADED"
		}
	}

	if err := success.CheckHealth(); err != nil {
		logger.Warnf("History store unhealthy: %v", err)
		response.History = "unavailable"
	}

	if s.deps.Registry != nil {
		for _, rec := range s.deps.Registry.List() {
			if rec.Status == job.StatusCompleted || rec.Status == job.StatusError {
				response.Jobs.Finished++
			} else {
				response.Jobs.Active++
			}
		}
	}

	logger.Debugf("Health check response: status=%s, ffmpeg=%t", response.Status, response.FFmpeg.Available)
	writeJSON(w, http.StatusOK, response)
}
