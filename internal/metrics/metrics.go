// Package metrics counts render work and exports it in the Prometheus text
// format, for node_exporter's textfile collector or a quick look after a run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	reg *prometheus.Registry

	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	jobs          *prometheus.CounterVec
	retries       *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vertclip",
			Name:      "stage_runs_total",
			Help:      "Render stage executions by stage and result.",
		}, []string{"stage", "result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vertclip",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of render stage executions.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"stage"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vertclip",
			Name:      "jobs_total",
			Help:      "Finished render jobs by terminal status.",
		}, []string{"status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vertclip",
			Name:      "provider_retries_total",
			Help:      "Provider calls retried after a transient failure.",
		}, []string{"op"}),
	}
	c.reg.MustRegister(c.stageRuns, c.stageDuration, c.jobs, c.retries)
	return c
}

func (c *Collector) StageFinished(stage, result string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageRuns.WithLabelValues(stage, result).Inc()
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (c *Collector) JobFinished(status string) {
	if c == nil {
		return
	}
	c.jobs.WithLabelValues(status).Inc()
}

func (c *Collector) ProviderRetry(op string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(op).Inc()
}

// WriteTextfile atomically writes all metrics to path.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.reg)
}
