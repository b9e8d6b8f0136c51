package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jobsonar/jobsonar/internal/progress"
)

// PrometheusSink exports run progress metrics. It owns all collectors for
// runs started/completed/active and per-source fetch outcomes.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	sourceResults *prometheus.CounterVec
	sourceJobs    *prometheus.CounterVec
	sourceLatency *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobsonar_runs_started_total",
			Help: "Total discovery runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobsonar_runs_completed_total",
			Help: "Total discovery runs reaching a terminal state, by status.",
		}, []string{"status"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobsonar_runs_active",
			Help: "Current number of running discovery runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobsonar_run_duration_seconds",
			Help:    "Wall time per terminal run, by status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"status"}),
		sourceResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobsonar_source_results_total",
			Help: "Source fetch completions partitioned by source and outcome.",
		}, []string{"source", "outcome"}),
		sourceJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobsonar_source_jobs_total",
			Help: "Postings per source partitioned by found vs new.",
		}, []string{"source", "kind"}),
		sourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobsonar_source_fetch_duration_seconds",
			Help:    "Per-source fetch duration including retries.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"source"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.sourceResults,
		s.sourceJobs,
		s.sourceLatency,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch. It is safe for
// concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsActive.Inc()
		}
	case progress.StageRunDone, progress.StageRunError:
		status := string(evt.Status)
		if status == "" {
			status = "unknown"
		}
		s.runsCompleted.WithLabelValues(status).Inc()
		if evt.Dur > 0 {
			s.runDuration.WithLabelValues(status).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.RunID) {
			s.runsActive.Dec()
		}
	case progress.StageSourceDone:
		s.sourceResults.WithLabelValues(evt.SourceID, "success").Inc()
		s.sourceJobs.WithLabelValues(evt.SourceID, "found").Add(float64(evt.JobsFound))
		s.sourceJobs.WithLabelValues(evt.SourceID, "new").Add(float64(evt.JobsNew))
		if evt.Dur > 0 {
			s.sourceLatency.WithLabelValues(evt.SourceID).Observe(evt.Dur.Seconds())
		}
	case progress.StageSourceError:
		s.sourceResults.WithLabelValues(evt.SourceID, "error").Inc()
		if evt.Dur > 0 {
			s.sourceLatency.WithLabelValues(evt.SourceID).Observe(evt.Dur.Seconds())
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{active: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; ok {
		return false
	}
	t.active[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; !ok {
		return false
	}
	delete(t.active, id)
	return true
}
