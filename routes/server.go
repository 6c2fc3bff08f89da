package routes

import (
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/time/rate"

	"m3u8conv/job"
	"m3u8conv/logger"
	"m3u8conv/models"
)

// Deps are the collaborators the HTTP layer adapts
type Deps struct {
	// BaseContext outlives requests; conversions run under it
	BaseContext context.Context

	Registry job.Registry
	Worker   *job.Worker
	Reporter *job.Reporter

	OutputDir      string
	UploadDir      string
	MaxUploadBytes int64

	// SubmitRPS limits /convert and /convert-file. Zero disables the limit.
	SubmitRPS   float64
	SubmitBurst int

	// FFmpegCheck reports the resolved ffmpeg path or why it is unavailable
	FFmpegCheck func() (string, error)
	// LookupPublishKey validates publish keys on submission, if set
	LookupPublishKey func(key string) (map[string]string, error)

	Metrics MetricsSink
	// MetricsHandler serves /metrics when set
	MetricsHandler http.Handler
}

// MetricsSink receives submission counters
type MetricsSink interface {
	Submitted(source string)
	Rejected(reason string)
}

type nopMetrics struct{}

func (nopMetrics) Submitted(string) {}
func (nopMetrics) Rejected(string)  {}

// Server holds the handlers for one running instance
type Server struct {
	deps Deps
}

func NewServer(deps Deps) *Server {
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Reporter == nil && deps.Registry != nil {
		deps.Reporter = job.NewReporter(deps.Registry)
	}
	return &Server{deps: deps}
}

// Routes registers every endpoint on a new mux
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	submit := func(h http.HandlerFunc) http.Handler { return h }
	if s.deps.SubmitRPS > 0 {
		limiter := rate.NewLimiter(rate.Limit(s.deps.SubmitRPS), s.deps.SubmitBurst)
		submit = func(h http.HandlerFunc) http.Handler {
			return RateLimit(limiter, s.deps.Metrics, h)
		}
	}

	mux.Handle("/convert", submit(s.ConvertHandler))
	mux.Handle("/convert-file", submit(s.ConvertFileHandler))
	mux.HandleFunc("/progress/{id}", s.ProgressHandler)
	mux.HandleFunc("/downloads/{filename}", s.DownloadHandler)

	mux.HandleFunc("/health", s.HealthHandler)
	mux.HandleFunc("/version", VersionHandler)
	if s.deps.MetricsHandler != nil {
		mux.Handle("/metrics", s.deps.MetricsHandler)
	}

	mux.HandleFunc("/success", SuccessQueryHandler)
	mux.HandleFunc("/success/list", SuccessListHandler)
	mux.HandleFunc("/failures", FailureQueryHandler)
	mux.HandleFunc("/failures/list", FailureListHandler)
	mux.HandleFunc("/credentials", RegisterCredentialsHandler)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}
