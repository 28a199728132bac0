// Package queue defines the trigger queue that serializes pipeline work.
// Scheduled ticks and manual API triggers enqueue here; a single worker
// dequeues so at most one pipeline run executes at a time.
package queue

import (
	"time"

	"github.com/adtechlab/newswire/internal/pipeline"
)

// Reason records what caused a trigger to be enqueued.
type Reason string

// Supported trigger reasons.
const (
	ReasonSchedule Reason = "schedule"
	ReasonCatchUp  Reason = "catch_up"
	ReasonManual   Reason = "manual"
)

// Trigger asks the worker to execute pipeline work. A zero Stage requests a
// full pipeline run; a named Stage requests that single stage re-run against
// the latest upstream snapshot.
type Trigger struct {
	Stage      pipeline.StageName
	Reason     Reason
	EnqueuedAt time.Time
}

// FullPipeline reports whether the trigger requests the whole pipeline.
func (t Trigger) FullPipeline() bool {
	return t.Stage == ""
}
