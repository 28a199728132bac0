// Package api exposes the HTTP interface for the pipeline service.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adtechlab/newswire/internal/config"
	"github.com/adtechlab/newswire/internal/pipeline"
	"github.com/adtechlab/newswire/internal/queue"
	"github.com/adtechlab/newswire/internal/scheduler"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 500
	runsLookback     = 30 * 24 * time.Hour
)

// Server wires HTTP handlers to the stores and the trigger queue.
type Server struct {
	router    chi.Router
	runs      pipeline.RunStore
	snapshots pipeline.SnapshotStore
	triggers  scheduler.TriggerSink
	clock     pipeline.Clock
	cfg       config.Config
}

// NewServer constructs a Server with middleware and routes. The registry
// backs the /metrics endpoint; pass nil to fall back to the default
// gatherer.
func NewServer(
	runs pipeline.RunStore,
	snapshots pipeline.SnapshotStore,
	triggers scheduler.TriggerSink,
	clock pipeline.Clock,
	cfg config.Config,
	registry *prometheus.Registry,
) *Server {
	s := &Server{
		runs:      runs,
		snapshots: snapshots,
		triggers:  triggers,
		clock:     clock,
		cfg:       cfg,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	var registerer prometheus.Registerer
	if registry != nil {
		registerer = registry
	}
	r.Use(newHTTPMetrics(registerer).middleware)
	r.Use(recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metricsHandler(registry))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.listRuns)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Get("/articles", s.getRunArticles)
			})
		})
		r.Post("/pipeline/trigger", s.triggerPipeline)
		r.Post("/stages/{stage}/trigger", s.triggerStage)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func metricsHandler(registry *prometheus.Registry) http.Handler {
	if registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// A run-store round trip proves the backing store is reachable.
	if _, err := s.runs.ListRuns(r.Context(), nil, s.clock.Now().Add(-time.Minute), 1); err != nil {
		writeError(w, http.StatusServiceUnavailable, "run store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	var status *pipeline.RunStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := pipeline.RunStatus(raw)
		switch st {
		case pipeline.RunStatusRunning, pipeline.RunStatusSucceeded, pipeline.RunStatusFailed:
			status = &st
		default:
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
	}
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxRunsLimit {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	runs, err := s.runs.ListRuns(r.Context(), status, s.clock.Now().Add(-runsLookback), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) getRunArticles(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	articles, err := s.snapshots.ReadSnapshot(r.Context(), namespaceForStage(run.Stage), runID)
	if err != nil {
		if errors.Is(err, pipeline.ErrSnapshotNotFound) {
			writeError(w, http.StatusNotFound, "no snapshot for run")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read snapshot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "articles": articles})
}

func (s *Server) triggerPipeline(w http.ResponseWriter, r *http.Request) {
	s.enqueue(w, queue.Trigger{Reason: queue.ReasonManual})
}

func (s *Server) triggerStage(w http.ResponseWriter, r *http.Request) {
	stage := pipeline.StageName(chi.URLParam(r, "stage"))
	if !stage.Valid() {
		writeError(w, http.StatusBadRequest, "unknown stage")
		return
	}
	s.enqueue(w, queue.Trigger{Stage: stage, Reason: queue.ReasonManual})
}

func (s *Server) enqueue(w http.ResponseWriter, trig queue.Trigger) {
	trig.EnqueuedAt = s.clock.Now()
	if err := s.triggers.TryEnqueue(trig); err != nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline busy, retry later")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "queued",
		"stage":  string(trig.Stage),
	})
}

func namespaceForStage(stage pipeline.StageName) pipeline.Namespace {
	switch stage {
	case pipeline.StageDedup:
		return pipeline.NamespaceProcessed
	case pipeline.StageFilter:
		return pipeline.NamespaceFinal
	default:
		return pipeline.NamespaceRaw
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}
