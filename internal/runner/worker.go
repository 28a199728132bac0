package runner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/adtechlab/newswire/internal/queue"
)

// TriggerSource yields pipeline triggers in arrival order.
type TriggerSource interface {
	Dequeue(ctx context.Context) (queue.Trigger, error)
}

// Worker drains the trigger queue and executes each trigger on the Runner.
// A single worker guarantees runs never overlap, so snapshot versions stay
// strictly ordered per stage.
type Worker struct {
	runner   *Runner
	triggers TriggerSource
	logger   *zap.Logger
}

// NewWorker constructs a Worker.
func NewWorker(runner *Runner, triggers TriggerSource, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{runner: runner, triggers: triggers, logger: logger}
}

// Run processes triggers until the context ends or the queue closes. Stage
// failures are logged and already recorded as failed runs; the worker keeps
// serving subsequent triggers.
func (w *Worker) Run(ctx context.Context) error {
	for {
		trig, err := w.triggers.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		w.handle(ctx, trig)
	}
}

func (w *Worker) handle(ctx context.Context, trig queue.Trigger) {
	start := time.Now()
	fields := []zap.Field{
		zap.String("reason", string(trig.Reason)),
		zap.String("stage", string(trig.Stage)),
	}
	w.logger.Info("executing trigger", fields...)

	var err error
	if trig.FullPipeline() {
		err = w.runner.RunPipeline(ctx)
	} else {
		_, err = w.runner.RunStage(ctx, trig.Stage)
	}
	if err != nil {
		w.logger.Error("trigger execution failed", append(fields, zap.Error(err))...)
		return
	}
	w.logger.Info("trigger executed", append(fields, zap.Duration("dur", time.Since(start)))...)
}
