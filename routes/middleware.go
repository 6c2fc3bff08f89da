package routes

import (
	"net/http"

	"golang.org/x/time/rate"

	"m3u8conv/logger"
)

// RateLimit rejects requests with 429 once limiter is exhausted
func RateLimit(limiter *rate.Limiter, sink MetricsSink, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			logger.Warnf("Rate limit exceeded: path=%s, remoteAddr=%s", r.URL.Path, r.RemoteAddr)
			sink.Rejected("rate_limited")
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Too many conversion requests, retry shortly")
			return
		}
		next.ServeHTTP(w, r)
	})
}
