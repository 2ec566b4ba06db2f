// Package metrics exposes Prometheus metrics for the job pipeline. The
// Recorder subscribes to job lifecycle events and samples queue depth.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/sitegen-api/internal/events"
	"github.com/phrazzld/sitegen-api/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for all sitegen metrics.
	Namespace = "sitegen"

	// Subsystem is the subsystem for job pipeline metrics.
	Subsystem = "jobs"
)

// Queue states reported by the queue_jobs gauge.
const (
	StateWaiting   = "waiting"
	StateDelayed   = "delayed"
	StateActive    = "active"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

// StatsSource is the part of the job queue the recorder samples.
type StatsSource interface {
	Stats(ctx context.Context) (task.Stats, error)
}

// Recorder holds the pipeline metrics.
type Recorder struct {
	JobEventsTotal     *prometheus.CounterVec
	JobDurationSeconds *prometheus.HistogramVec
	EnqueuedTotal      *prometheus.CounterVec
	QueueJobs          *prometheus.GaugeVec
	QueuePaused        prometheus.Gauge

	logger *slog.Logger
}

var _ events.EventHandler = (*Recorder)(nil)

// NewRecorder creates and registers the pipeline metrics with reg.
// A nil reg registers with the default registry.
func NewRecorder(reg prometheus.Registerer, logger *slog.Logger) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = slog.Default()
	}

	factory := promauto.With(reg)
	return &Recorder{
		JobEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "events_total",
				Help:      "Job lifecycle events by job type and event",
			},
			[]string{"job_type", "event"},
		),
		JobDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "attempt_duration_seconds",
				Help:      "Duration of job attempts in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
			},
			[]string{"job_type", "event"},
		),
		EnqueuedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "enqueued_total",
				Help:      "Jobs accepted by the queue",
			},
			[]string{"job_type"},
		),
		QueueJobs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "queue_jobs",
				Help:      "Jobs held by the queue per state",
			},
			[]string{"state"},
		),
		QueuePaused: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "queue_paused",
				Help:      "1 while the queue is paused",
			},
		),
		logger: logger.With("component", "metrics"),
	}
}

// HandleEvent implements events.EventHandler.
func (r *Recorder) HandleEvent(_ context.Context, event *events.JobEvent) error {
	r.JobEventsTotal.WithLabelValues(event.JobType, event.Type).Inc()
	if event.Duration > 0 {
		r.JobDurationSeconds.WithLabelValues(event.JobType, event.Type).Observe(event.Duration.Seconds())
	}
	return nil
}

// RecordEnqueued counts a job accepted by the queue.
func (r *Recorder) RecordEnqueued(jobType task.JobType) {
	r.EnqueuedTotal.WithLabelValues(string(jobType)).Inc()
}

// ObserveQueue sets the queue gauges from a stats snapshot.
func (r *Recorder) ObserveQueue(s task.Stats) {
	r.QueueJobs.WithLabelValues(StateWaiting).Set(float64(s.Waiting))
	r.QueueJobs.WithLabelValues(StateDelayed).Set(float64(s.Delayed))
	r.QueueJobs.WithLabelValues(StateActive).Set(float64(s.Active))
	r.QueueJobs.WithLabelValues(StateCompleted).Set(float64(s.Completed))
	r.QueueJobs.WithLabelValues(StateFailed).Set(float64(s.Failed))
	r.QueueJobs.WithLabelValues(StateCancelled).Set(float64(s.Cancelled))
	if s.Paused {
		r.QueuePaused.Set(1)
	} else {
		r.QueuePaused.Set(0)
	}
}

// WatchQueue samples source every interval until ctx is cancelled.
// Sampling errors are logged and the previous values kept.
func (r *Recorder) WatchQueue(ctx context.Context, source StatsSource, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	sample := func() {
		stats, err := source.Stats(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Warn("failed to sample queue stats", "error", err)
			}
			return
		}
		r.ObserveQueue(stats)
	}

	sample()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}
