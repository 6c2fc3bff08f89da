// Package metrics exposes conversion job counters in the Prometheus format.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"m3u8conv/job"
)

const namespace = "m3u8conv"

// Metrics holds the collectors for one server instance
type Metrics struct {
	registry *prometheus.Registry

	submitted *prometheus.CounterVec
	finished  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	evicted   prometheus.Counter
	rejected  *prometheus.CounterVec
}

// New registers the job collectors. jobs feeds the per-status gauge and may be nil.
func New(jobs job.Registry) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Conversion jobs accepted, by source kind.",
		}, []string{"source"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Conversion jobs that reached a terminal state, by status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from submission to terminal state.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"status"}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_evicted_total",
			Help:      "Terminal jobs removed by the retention sweeper.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_rejected_total",
			Help:      "Submissions rejected before a job was created, by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.submitted, m.finished, m.duration, m.evicted, m.rejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if jobs != nil {
		m.registry.MustRegister(&statusCollector{jobs: jobs, desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "jobs"),
			"Jobs currently held in the registry, by status.",
			[]string{"status"}, nil,
		)})
	}
	return m
}

// Handler serves the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Submitted counts an accepted job
func (m *Metrics) Submitted(source string) {
	m.submitted.WithLabelValues(source).Inc()
}

// Rejected counts a submission turned away before job creation
func (m *Metrics) Rejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

// Evicted counts a record removed by the sweeper
func (m *Metrics) Evicted(job.Record) {
	m.evicted.Inc()
}

// Hook is a job.FinishHook recording the terminal outcome
func (m *Metrics) Hook(ctx context.Context, rec job.Record) {
	status := string(rec.Status)
	m.finished.WithLabelValues(status).Inc()
	if rec.CompletedAt != nil {
		m.duration.WithLabelValues(status).Observe(rec.CompletedAt.Sub(rec.CreatedAt).Seconds())
	}
}

// statusCollector reports registry occupancy at scrape time
type statusCollector struct {
	jobs job.Registry
	desc *prometheus.Desc
}

func (c *statusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *statusCollector) Collect(ch chan<- prometheus.Metric) {
	counts := map[job.Status]int{
		job.StatusStarting:   0,
		job.StatusConverting: 0,
		job.StatusCompleted:  0,
		job.StatusError:      0,
	}
	for _, rec := range c.jobs.List() {
		counts[rec.Status]++
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), string(status))
	}
}
