// Package notify implements the alert sinks used by the failure sensor.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/adtechlab/newswire/internal/pipeline"
)

// LogNotifier writes alerts to the structured log. It is the default sink
// for environments without a paging webhook.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the alert with one entry per failed run.
func (n *LogNotifier) Notify(_ context.Context, alert pipeline.Alert) error {
	n.logger.Warn("pipeline failure alert",
		zap.Int("failure_count", alert.FailureCount),
		zap.Time("window_start", alert.WindowStart),
		zap.Time("window_end", alert.WindowEnd),
	)
	for _, f := range alert.Failures {
		n.logger.Warn("failed run",
			zap.String("run_id", f.RunID),
			zap.String("stage", string(f.Stage)),
			zap.Time("at", f.At),
			zap.String("excerpt", f.Excerpt),
		)
	}
	return nil
}

// NoOpNotifier discards alerts.
type NoOpNotifier struct{}

// Notify does nothing and returns nil.
func (NoOpNotifier) Notify(context.Context, pipeline.Alert) error { return nil }
