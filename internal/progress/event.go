package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/adtechlab/newswire/internal/pipeline"
)

// Kind denotes the type of milestone represented by an Event.
type Kind string

// Supported progress kinds.
const (
	KindRunStart         Kind = "RUN_START"
	KindRunDone          Kind = "RUN_DONE"
	KindRunError         Kind = "RUN_ERROR"
	KindProviderDegraded Kind = "PROVIDER_DEGRADED"
)

// Event captures a single pipeline run milestone.
type Event struct {
	// RunID identifies the stage run the event belongs to.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Kind denotes which lifecycle milestone occurred.
	Kind Kind
	// Stage names the pipeline stage the run executed.
	Stage pipeline.StageName
	// ArticleCount carries the surviving article count for completions.
	ArticleCount int
	// RemovedCount carries duplicates or invalid records dropped.
	RemovedCount int
	// Dur captures wall time for run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if !e.Stage.Valid() {
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	switch e.Kind {
	case KindRunStart, KindRunDone, KindRunError, KindProviderDegraded:
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
