package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned by RunStore lookups for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// ErrSnapshotNotFound is returned when a namespace holds no snapshot for
// the requested run.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ArticleSource queries the external article-search API. Implementations
// must apply a bounded timeout and signal failure to the caller; the fetch
// stage decides how to recover. Raw is the undecoded provider payload,
// returned so the caller can archive it for replay.
type ArticleSource interface {
	Search(ctx context.Context, q Query) (items []ProviderArticle, raw []byte, err error)
}

// SnapshotStore persists each stage's output as a new run-versioned
// snapshot. Writes must be all-or-nothing: a partially written snapshot
// must never become visible to readers.
type SnapshotStore interface {
	WriteSnapshot(ctx context.Context, ns Namespace, runID string, articles []Article) error
	ReadSnapshot(ctx context.Context, ns Namespace, runID string) ([]Article, error)
}

// RunStore records stage executions and answers the run-history queries
// the cursor lookup and the failure sensor depend on.
type RunStore interface {
	StartRun(ctx context.Context, run Run) error
	CompleteRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListRuns(ctx context.Context, status *RunStatus, after time.Time, limit int) ([]Run, error)
	// LastRun returns the most recent run of the stage with the given
	// status, or ErrRunNotFound when no such run exists.
	LastRun(ctx context.Context, stage StageName, status RunStatus) (Run, error)
}

// BlobStore archives raw provider payloads and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes stage-completion events to a topic for downstream
// consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
	Close() error
}

// Alert is the batched failure notification assembled by the sensor.
type Alert struct {
	WindowStart  time.Time      `json:"window_start"`
	WindowEnd    time.Time      `json:"window_end"`
	FailureCount int            `json:"failure_count"`
	Failures     []AlertFailure `json:"failures"`
}

// AlertFailure summarizes one failed run inside an alert window.
type AlertFailure struct {
	RunID   string    `json:"run_id"`
	Stage   StageName `json:"stage"`
	At      time.Time `json:"at"`
	Excerpt string    `json:"excerpt"`
}

// Notifier dispatches batched failure alerts to an external sink.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes digests used as stable article identifiers.
type Hasher interface {
	Hash(data []byte) (string, error)
}
