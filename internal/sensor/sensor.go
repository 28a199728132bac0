// Package sensor watches the run history for failures and dispatches
// batched alerts. One alert summarizes every failure inside a window, so a
// burst of broken runs produces one notification instead of a page storm.
package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adtechlab/newswire/internal/pipeline"
)

const (
	// maxExcerptLen bounds per-failure error text inside an alert.
	maxExcerptLen = 256
	// maxFailuresPerTick bounds how many failed runs one alert carries.
	maxFailuresPerTick = 100
)

// Sensor accumulates failed runs since its cursor and notifies in batches.
// The cursor only advances after a successful notification, so failures are
// retried on the next tick rather than silently dropped.
type Sensor struct {
	runs     pipeline.RunStore
	notifier pipeline.Notifier
	clock    pipeline.Clock
	window   time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cursor time.Time
}

// New constructs a Sensor. The first tick looks back one window from now.
func New(runs pipeline.RunStore, notifier pipeline.Notifier, clock pipeline.Clock, window time.Duration, logger *zap.Logger) *Sensor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sensor{
		runs:     runs,
		notifier: notifier,
		clock:    clock,
		window:   window,
		logger:   logger,
	}
}

// Tick scans for failed runs newer than the cursor and sends one batched
// alert when any exist. A quiet window advances the cursor without
// notifying.
func (s *Sensor) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.cursor.IsZero() {
		s.cursor = now.Add(-s.window)
	}

	// The window is bounded on started_at: a run that started before the
	// cursor but failed after it falls outside every window. Runs are short
	// and serialized, so in practice a run starts and fails inside one tick.
	failed := pipeline.RunStatusFailed
	runs, err := s.runs.ListRuns(ctx, &failed, s.cursor, maxFailuresPerTick)
	if err != nil {
		return fmt.Errorf("list failed runs: %w", err)
	}
	if len(runs) == 0 {
		s.cursor = now
		return nil
	}

	alert := pipeline.Alert{
		WindowStart:  s.cursor,
		WindowEnd:    now,
		FailureCount: len(runs),
		Failures:     make([]pipeline.AlertFailure, 0, len(runs)),
	}
	for _, run := range runs {
		alert.Failures = append(alert.Failures, pipeline.AlertFailure{
			RunID:   run.ID,
			Stage:   run.Stage,
			At:      run.StartedAt,
			Excerpt: excerpt(run.ErrorText),
		})
	}

	if err := s.notifier.Notify(ctx, alert); err != nil {
		// Keep the cursor so the same failures are re-alerted next tick.
		return fmt.Errorf("dispatch failure alert: %w", err)
	}
	s.logger.Info("failure alert dispatched",
		zap.Int("failure_count", alert.FailureCount),
		zap.Time("window_start", alert.WindowStart),
		zap.Time("window_end", alert.WindowEnd),
	)
	s.cursor = now
	return nil
}

func excerpt(text string) string {
	if len(text) <= maxExcerptLen {
		return text
	}
	return text[:maxExcerptLen]
}
