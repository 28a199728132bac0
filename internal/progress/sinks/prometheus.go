package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adtechlab/newswire/internal/progress"
)

// PrometheusSink exports pipeline progress metrics via Prometheus. It owns
// all collectors for runs started/completed/running and per-stage article
// counters.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	articlesKept    *prometheus.CounterVec
	articlesRemoved *prometheus.CounterVec
	providerErrors  prometheus.Counter

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_runs_started_total",
			Help: "Total stage runs that have started.",
		}, []string{"stage"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_runs_completed_total",
			Help: "Total stage runs completed partitioned by stage and result.",
		}, []string{"stage", "result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_runs_running",
			Help: "Current number of running stage runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Wall time per completed stage run.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage", "result"}),
		articlesKept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_articles_kept_total",
			Help: "Articles surviving each stage run.",
		}, []string{"stage"}),
		articlesRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_articles_removed_total",
			Help: "Articles dropped by each stage run.",
		}, []string{"stage"}),
		providerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_provider_errors_total",
			Help: "Fetch runs that completed degraded due to a provider error.",
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.articlesKept,
		s.articlesRemoved,
		s.providerErrors,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	stage := string(evt.Stage)
	switch evt.Kind {
	case progress.KindRunStart:
		s.runsStarted.WithLabelValues(stage).Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.KindRunDone:
		s.completeRun(evt, "success")
		s.articlesKept.WithLabelValues(stage).Add(float64(evt.ArticleCount))
		s.articlesRemoved.WithLabelValues(stage).Add(float64(evt.RemovedCount))
	case progress.KindRunError:
		s.completeRun(evt, "error")
	case progress.KindProviderDegraded:
		s.providerErrors.Inc()
	}
}

func (s *PrometheusSink) completeRun(evt progress.Event, result string) {
	stage := string(evt.Stage)
	s.runsCompleted.WithLabelValues(stage, result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(stage, result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
