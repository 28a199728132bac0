// Package scheduler turns cron ticks into pipeline triggers. It never runs
// stages itself; every tick is enqueued so the single worker serializes
// execution.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/adtechlab/newswire/internal/pipeline"
	"github.com/adtechlab/newswire/internal/queue"
)

// TriggerSink accepts triggers without blocking.
type TriggerSink interface {
	TryEnqueue(trig queue.Trigger) error
}

// SensorFunc is invoked on every sensor tick.
type SensorFunc func(ctx context.Context) error

// Config holds the cron expressions and the sensor cadence.
type Config struct {
	// FetchCron fires a full pipeline run.
	FetchCron string
	// CatchUpCron re-runs dedup and filter against the latest committed
	// snapshots. Completion edges make this redundant in steady state; it
	// exists to repair the chain after a crash between stages.
	CatchUpCron string
	// SensorEvery is the failure-sensor tick interval.
	SensorEvery time.Duration
}

// Validate checks the config before the scheduler starts.
func (c Config) Validate() error {
	if c.FetchCron == "" {
		return errors.New("schedule.fetch_cron must be set")
	}
	if c.SensorEvery <= 0 {
		return errors.New("schedule.sensor_every must be > 0")
	}
	return nil
}

// Scheduler owns the cron runner and the sensor ticker.
type Scheduler struct {
	cfg    Config
	sink   TriggerSink
	sensor SensorFunc
	clock  pipeline.Clock
	logger *zap.Logger

	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Scheduler.
func New(cfg Config, sink TriggerSink, sensor SensorFunc, clock pipeline.Clock, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:    cfg,
		sink:   sink,
		sensor: sensor,
		clock:  clock,
		logger: logger,
	}
}

// Start registers the cron entries and launches the sensor ticker. It
// returns once everything is scheduled; ticks fire on background
// goroutines until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.FetchCron, func() {
		s.enqueue(queue.Trigger{Reason: queue.ReasonSchedule})
	}); err != nil {
		return fmt.Errorf("parse fetch cron %q: %w", s.cfg.FetchCron, err)
	}
	if s.cfg.CatchUpCron != "" {
		if _, err := s.cron.AddFunc(s.cfg.CatchUpCron, func() {
			s.enqueue(queue.Trigger{Stage: pipeline.StageDedup, Reason: queue.ReasonCatchUp})
			s.enqueue(queue.Trigger{Stage: pipeline.StageFilter, Reason: queue.ReasonCatchUp})
		}); err != nil {
			return fmt.Errorf("parse catch-up cron %q: %w", s.cfg.CatchUpCron, err)
		}
	}
	s.cron.Start()

	ctx, s.cancel = context.WithCancel(ctx)
	if s.sensor != nil {
		s.wg.Add(1)
		go s.runSensor(ctx)
	}

	s.logger.Info("scheduler started",
		zap.String("fetch_cron", s.cfg.FetchCron),
		zap.String("catch_up_cron", s.cfg.CatchUpCron),
		zap.Duration("sensor_every", s.cfg.SensorEvery),
	)
	return nil
}

// Stop halts new ticks and waits for the sensor goroutine to exit. Cron
// jobs already running are allowed to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) enqueue(trig queue.Trigger) {
	trig.EnqueuedAt = s.clock.Now()
	if err := s.sink.TryEnqueue(trig); err != nil {
		// A full queue means the worker is still busy with earlier work;
		// the next tick will try again.
		s.logger.Warn("dropping schedule trigger",
			zap.String("stage", string(trig.Stage)),
			zap.String("reason", string(trig.Reason)),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("trigger enqueued",
		zap.String("stage", string(trig.Stage)),
		zap.String("reason", string(trig.Reason)),
	)
}

func (s *Scheduler) runSensor(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SensorEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sensor(ctx); err != nil {
				s.logger.Error("sensor tick failed", zap.Error(err))
			}
		}
	}
}
