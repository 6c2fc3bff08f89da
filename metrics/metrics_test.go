package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"m3u8conv/engine"
	"m3u8conv/job"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestMetricsExposition(t *testing.T) {
	reg := job.NewMemoryRegistry()
	reg.Create(job.Spec{Source: job.Source{Kind: engine.SourceRemote, Locator: "https://cdn.example.com/a.m3u8"}})

	m := New(reg)
	m.Submitted("remote")
	m.Rejected("invalid_playlist")

	done := time.Now()
	m.Hook(context.Background(), job.Record{
		Status:      job.StatusCompleted,
		CreatedAt:   done.Add(-2 * time.Second),
		CompletedAt: &done,
	})
	m.Evicted(job.Record{})

	body := scrape(t, m)
	expected := []string{
		`m3u8conv_jobs_submitted_total{source="remote"} 1`,
		`m3u8conv_submissions_rejected_total{reason="invalid_playlist"} 1`,
		`m3u8conv_jobs_finished_total{status="completed"} 1`,
		`m3u8conv_job_duration_seconds_count{status="completed"} 1`,
		`m3u8conv_jobs_evicted_total 1`,
		`m3u8conv_jobs{status="starting"} 1`,
		`m3u8conv_jobs{status="completed"} 0`,
	}
	for _, line := range expected {
		if !strings.Contains(body, line) {
			t.Errorf("Expected metrics output to contain %q", line)
		}
	}
}
