// Package metrics exposes Prometheus instruments for relationship jobs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's instruments on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	JobsTotal      *prometheus.CounterVec
	JobRetries     *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	PostsRewritten *prometheus.CounterVec
	UndoConflicts  prometheus.Counter
	Proposals      *prometheus.CounterVec
	QueueDepth     prometheus.Gauge
}

// New registers every instrument on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tagyard",
			Name:      "relationship_jobs_total",
			Help:      "Relationship jobs by kind, transition and outcome.",
		}, []string{"kind", "transition", "outcome"}),
		JobRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tagyard",
			Name:      "relationship_job_retries_total",
			Help:      "Retries scheduled after a failed propagation attempt.",
		}, []string{"kind", "transition"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tagyard",
			Name:      "relationship_job_duration_seconds",
			Help:      "Wall time of relationship jobs including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"kind", "transition"}),
		PostsRewritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tagyard",
			Name:      "posts_rewritten_total",
			Help:      "Posts whose tags were changed by propagation or undo.",
		}, []string{"kind", "transition"}),
		UndoConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tagyard",
			Name:      "undo_conflicts_total",
			Help:      "Posts skipped during undo because they changed independently.",
		}),
		Proposals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tagyard",
			Name:      "relationship_proposals_total",
			Help:      "Proposals by kind and result.",
		}, []string{"kind", "result"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tagyard",
			Name:      "relationship_queue_depth",
			Help:      "Jobs waiting in the relationship queue.",
		}),
	}
}

// ObserveJob records one finished job.
func (m *Metrics) ObserveJob(kind, transition, outcome string, elapsed time.Duration) {
	m.JobsTotal.WithLabelValues(kind, transition, outcome).Inc()
	m.JobDuration.WithLabelValues(kind, transition).Observe(elapsed.Seconds())
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
