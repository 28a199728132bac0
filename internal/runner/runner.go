// Package runner executes pipeline stages as recorded runs and chains them
// through completion edges: dedup starts only after the fetch run it reads
// has committed, and filter only after dedup.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/adtechlab/newswire/internal/pipeline"
	"github.com/adtechlab/newswire/internal/progress"
)

// Topics published on stage completion.
const (
	TopicFetchCompleted  = "pipeline.fetch.completed"
	TopicDedupCompleted  = "pipeline.dedup.completed"
	TopicFilterCompleted = "pipeline.filter.completed"
)

// StageEvent is the payload published when a stage run commits.
type StageEvent struct {
	RunID        string             `json:"run_id"`
	Stage        pipeline.StageName `json:"stage"`
	Status       pipeline.RunStatus `json:"status"`
	ArticleCount int                `json:"article_count"`
	RemovedCount int                `json:"removed_count"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
	SourceRunID  string             `json:"source_run_id,omitempty"`
}

// Runner executes individual stages. All stage outputs are written as
// immutable run-versioned snapshots before the run record flips to
// succeeded, so a visible succeeded run always has a readable snapshot.
type Runner struct {
	fetcher   *pipeline.Fetcher
	runs      pipeline.RunStore
	snapshots pipeline.SnapshotStore
	blobs     pipeline.BlobStore
	publisher pipeline.Publisher
	emitter   progress.Emitter
	clock     pipeline.Clock
	ids       pipeline.IDGenerator
	logger    *zap.Logger
}

// Deps bundles the runner's collaborators.
type Deps struct {
	Fetcher   *pipeline.Fetcher
	Runs      pipeline.RunStore
	Snapshots pipeline.SnapshotStore
	Blobs     pipeline.BlobStore
	Publisher pipeline.Publisher
	Emitter   progress.Emitter
	Clock     pipeline.Clock
	IDs       pipeline.IDGenerator
	Logger    *zap.Logger
}

// New constructs a Runner.
func New(deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		fetcher:   deps.Fetcher,
		runs:      deps.Runs,
		snapshots: deps.Snapshots,
		blobs:     deps.Blobs,
		publisher: deps.Publisher,
		emitter:   deps.Emitter,
		clock:     deps.Clock,
		ids:       deps.IDs,
		logger:    logger,
	}
}

// RunPipeline executes fetch, dedup, and filter in order. Each downstream
// stage starts only once its upstream run has committed and reads exactly
// that run's snapshot, so a slow or failed upstream can never feed a stale
// batch downstream.
func (r *Runner) RunPipeline(ctx context.Context) error {
	fetchRun, err := r.RunFetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch stage: %w", err)
	}
	dedupRun, err := r.RunDedup(ctx, fetchRun.ID)
	if err != nil {
		return fmt.Errorf("dedup stage: %w", err)
	}
	if _, err := r.RunFilter(ctx, dedupRun.ID); err != nil {
		return fmt.Errorf("filter stage: %w", err)
	}
	return nil
}

// RunStage executes a single stage against the latest committed upstream
// snapshot. Manual re-runs use this path.
func (r *Runner) RunStage(ctx context.Context, stage pipeline.StageName) (pipeline.Run, error) {
	switch stage {
	case pipeline.StageFetch:
		return r.RunFetch(ctx)
	case pipeline.StageDedup:
		upstream, err := r.runs.LastRun(ctx, pipeline.StageFetch, pipeline.RunStatusSucceeded)
		if err != nil {
			return pipeline.Run{}, fmt.Errorf("resolve latest fetch run: %w", err)
		}
		return r.RunDedup(ctx, upstream.ID)
	case pipeline.StageFilter:
		upstream, err := r.runs.LastRun(ctx, pipeline.StageDedup, pipeline.RunStatusSucceeded)
		if err != nil {
			return pipeline.Run{}, fmt.Errorf("resolve latest dedup run: %w", err)
		}
		return r.RunFilter(ctx, upstream.ID)
	default:
		return pipeline.Run{}, fmt.Errorf("unknown stage %q", stage)
	}
}

// RunFetch executes the fetch stage: resolve the cursor, query the
// provider, archive the raw payload, and commit the raw snapshot. The run's
// cursor is stamped with the batch FetchedAt so the next fetch resumes
// exactly where this one left off. Provider outages degrade to an empty
// succeeded run that carries no cursor, so the next fetch falls back to the
// lookback window and recovers the articles published during the outage.
func (r *Runner) RunFetch(ctx context.Context) (pipeline.Run, error) {
	run, err := r.startRun(ctx, pipeline.StageFetch)
	if err != nil {
		return pipeline.Run{}, err
	}

	cursor, err := r.fetcher.CursorOrDefault(ctx, r.runs)
	if err != nil {
		return r.failRun(ctx, run, err)
	}
	articles, raw, report, err := r.fetcher.Fetch(ctx, cursor)
	if err != nil {
		return r.failRun(ctx, run, err)
	}
	if report.ProviderError != "" {
		r.emit(progress.Event{
			RunID: run.ID,
			TS:    r.clock.Now(),
			Kind:  progress.KindProviderDegraded,
			Stage: pipeline.StageFetch,
			Note:  report.ProviderError,
		})
	}

	if len(raw) > 0 {
		path := fmt.Sprintf("raw/%s.json", run.ID)
		uri, err := r.blobs.PutObject(ctx, path, "application/json", raw)
		if err != nil {
			r.logger.Warn("raw payload archive failed", zap.String("run_id", run.ID), zap.Error(err))
		} else {
			run.Metadata = map[string]any{"raw_payload_uri": uri}
		}
	}

	if err := r.snapshots.WriteSnapshot(ctx, pipeline.NamespaceRaw, run.ID, articles); err != nil {
		return r.failRun(ctx, run, fmt.Errorf("write raw snapshot: %w", err))
	}

	run.ArticleCount = len(articles)
	run.RemovedCount = report.Skipped
	if report.ProviderError == "" {
		run.Cursor = &report.FetchedAt
	}
	mergeMetadata(&run, report)
	return r.completeRun(ctx, run, TopicFetchCompleted, "")
}

// RunDedup reads the raw snapshot of the named fetch run, removes URL
// duplicates keeping the first occurrence, and commits the processed
// snapshot.
func (r *Runner) RunDedup(ctx context.Context, fetchRunID string) (pipeline.Run, error) {
	run, err := r.startRun(ctx, pipeline.StageDedup)
	if err != nil {
		return pipeline.Run{}, err
	}

	input, err := r.snapshots.ReadSnapshot(ctx, pipeline.NamespaceRaw, fetchRunID)
	if err != nil {
		return r.failRun(ctx, run, fmt.Errorf("read raw snapshot %s: %w", fetchRunID, err))
	}
	output, report := pipeline.Dedup(input)

	if err := r.snapshots.WriteSnapshot(ctx, pipeline.NamespaceProcessed, run.ID, output); err != nil {
		return r.failRun(ctx, run, fmt.Errorf("write processed snapshot: %w", err))
	}

	run.ArticleCount = report.TotalArticles
	run.RemovedCount = report.DuplicatesRemoved
	mergeMetadata(&run, report)
	return r.completeRun(ctx, run, TopicDedupCompleted, fetchRunID)
}

// RunFilter reads the processed snapshot of the named dedup run, drops
// invalid records, normalizes timestamps, sorts newest first, and commits
// the final snapshot.
func (r *Runner) RunFilter(ctx context.Context, dedupRunID string) (pipeline.Run, error) {
	run, err := r.startRun(ctx, pipeline.StageFilter)
	if err != nil {
		return pipeline.Run{}, err
	}

	input, err := r.snapshots.ReadSnapshot(ctx, pipeline.NamespaceProcessed, dedupRunID)
	if err != nil {
		return r.failRun(ctx, run, fmt.Errorf("read processed snapshot %s: %w", dedupRunID, err))
	}
	output, report := pipeline.Filter(input)

	if err := r.snapshots.WriteSnapshot(ctx, pipeline.NamespaceFinal, run.ID, output); err != nil {
		return r.failRun(ctx, run, fmt.Errorf("write final snapshot: %w", err))
	}

	run.ArticleCount = report.TotalArticles
	run.RemovedCount = report.RemovedArticles
	mergeMetadata(&run, report)
	return r.completeRun(ctx, run, TopicFilterCompleted, dedupRunID)
}

func (r *Runner) startRun(ctx context.Context, stage pipeline.StageName) (pipeline.Run, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return pipeline.Run{}, fmt.Errorf("generate run id: %w", err)
	}
	run := pipeline.Run{
		ID:        id,
		Stage:     stage,
		Status:    pipeline.RunStatusRunning,
		StartedAt: r.clock.Now(),
	}
	if err := r.runs.StartRun(ctx, run); err != nil {
		return pipeline.Run{}, fmt.Errorf("record run start: %w", err)
	}
	r.emit(progress.Event{RunID: run.ID, TS: run.StartedAt, Kind: progress.KindRunStart, Stage: stage})
	r.logger.Info("stage run started", zap.String("run_id", run.ID), zap.String("stage", string(stage)))
	return run, nil
}

func (r *Runner) completeRun(ctx context.Context, run pipeline.Run, topic, sourceRunID string) (pipeline.Run, error) {
	finished := r.clock.Now()
	run.Status = pipeline.RunStatusSucceeded
	run.FinishedAt = &finished
	if sourceRunID != "" {
		mergeMetadata(&run, map[string]any{"source_run_id": sourceRunID})
	}
	if err := r.runs.CompleteRun(ctx, run); err != nil {
		return pipeline.Run{}, fmt.Errorf("record run completion: %w", err)
	}

	r.emit(progress.Event{
		RunID:        run.ID,
		TS:           finished,
		Kind:         progress.KindRunDone,
		Stage:        run.Stage,
		ArticleCount: run.ArticleCount,
		RemovedCount: run.RemovedCount,
		Dur:          finished.Sub(run.StartedAt),
	})
	r.logger.Info("stage run succeeded",
		zap.String("run_id", run.ID),
		zap.String("stage", string(run.Stage)),
		zap.Int("article_count", run.ArticleCount),
		zap.Int("removed_count", run.RemovedCount),
	)

	if r.publisher != nil {
		event := StageEvent{
			RunID:        run.ID,
			Stage:        run.Stage,
			Status:       run.Status,
			ArticleCount: run.ArticleCount,
			RemovedCount: run.RemovedCount,
			StartedAt:    run.StartedAt,
			FinishedAt:   finished,
			SourceRunID:  sourceRunID,
		}
		if _, err := r.publisher.Publish(ctx, topic, event); err != nil {
			r.logger.Warn("stage event publish failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	return run, nil
}

func (r *Runner) failRun(ctx context.Context, run pipeline.Run, cause error) (pipeline.Run, error) {
	finished := r.clock.Now()
	run.Status = pipeline.RunStatusFailed
	run.FinishedAt = &finished
	run.ErrorText = cause.Error()
	if err := r.runs.CompleteRun(ctx, run); err != nil {
		r.logger.Error("recording run failure failed",
			zap.String("run_id", run.ID), zap.NamedError("record_err", err), zap.Error(cause))
	}
	r.emit(progress.Event{
		RunID: run.ID,
		TS:    finished,
		Kind:  progress.KindRunError,
		Stage: run.Stage,
		Dur:   finished.Sub(run.StartedAt),
		Note:  cause.Error(),
	})
	r.logger.Error("stage run failed",
		zap.String("run_id", run.ID), zap.String("stage", string(run.Stage)), zap.Error(cause))
	return run, cause
}

func (r *Runner) emit(evt progress.Event) {
	if r.emitter != nil {
		r.emitter.Emit(evt)
	}
}

// mergeMetadata folds a stage report (or plain map) into the run's metadata
// by round-tripping through JSON, matching how the metadata column stores
// it.
func mergeMetadata(run *pipeline.Run, report any) {
	data, err := json.Marshal(report)
	if err != nil {
		return
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return
	}
	if run.Metadata == nil {
		run.Metadata = make(map[string]any, len(m))
	}
	for k, v := range m {
		run.Metadata[k] = v
	}
}
