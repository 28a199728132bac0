package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adtechlab/newswire/internal/pipeline"
	"github.com/adtechlab/newswire/internal/progress"
	pubmemory "github.com/adtechlab/newswire/internal/publisher/memory"
	"github.com/adtechlab/newswire/internal/storage/memory"
)

type fakeSource struct {
	mu      sync.Mutex
	items   []pipeline.ProviderArticle
	raw     []byte
	err     error
	queries []pipeline.Query
}

func (s *fakeSource) Search(_ context.Context, q pipeline.Query) ([]pipeline.ProviderArticle, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.items, s.raw, nil
}

func (s *fakeSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

type fakeHasher struct{}

func (fakeHasher) Hash(data []byte) (string, error) {
	return "h:" + string(data), nil
}

type fakeIDs struct {
	mu sync.Mutex
	n  int
}

func (g *fakeIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%d", g.n), nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *captureEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *captureEmitter) kinds() []progress.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]progress.Kind, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Kind)
	}
	return out
}

type harness struct {
	runner    *Runner
	source    *fakeSource
	runs      *memory.RunStore
	snapshots *memory.SnapshotStore
	blobs     *memory.BlobStore
	publisher *pubmemory.Publisher
	emitter   *captureEmitter
}

func newHarness(t *testing.T, source *fakeSource) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), step: time.Second}
	fetcher := pipeline.NewFetcher(source, clock, fakeHasher{}, pipeline.FetchConfig{
		Categories: []string{"news/Tech"},
		Lang:       "eng",
		MaxItems:   100,
	}, zap.NewNop())
	h := &harness{
		source:    source,
		runs:      memory.NewRunStore(),
		snapshots: memory.NewSnapshotStore(),
		blobs:     memory.NewBlobStore(),
		publisher: pubmemory.New(),
		emitter:   &captureEmitter{},
	}
	h.runner = New(Deps{
		Fetcher:   fetcher,
		Runs:      h.runs,
		Snapshots: h.snapshots,
		Blobs:     h.blobs,
		Publisher: h.publisher,
		Emitter:   h.emitter,
		Clock:     clock,
		IDs:       &fakeIDs{},
		Logger:    zap.NewNop(),
	})
	return h
}

func TestRunPipelineHappyPath(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		items: []pipeline.ProviderArticle{
			{Title: "A", URL: "https://a.example", Body: "body a", DateTime: "2024-06-01T10:00:00Z", SourceName: "SiteA"},
			{Title: "A dup", URL: "https://a.example", Body: "body dup", DateTime: "2024-06-01T09:00:00Z", SourceName: "SiteA"},
			{Title: "B", URL: "https://b.example", Body: "body b", DateTime: "2024-06-01T11:00:00Z", SourceName: "SiteB"},
			{Title: "", URL: "https://c.example", Body: "body c", DateTime: "2024-06-01T08:00:00Z", SourceName: "SiteC"},
		},
		raw: []byte(`{"articles":{}}`),
	}
	h := newHarness(t, source)
	ctx := context.Background()

	require.NoError(t, h.runner.RunPipeline(ctx))

	// Three succeeded runs, one per stage, in execution order.
	fetchRun, err := h.runs.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, pipeline.StageFetch, fetchRun.Stage)
	require.Equal(t, pipeline.RunStatusSucceeded, fetchRun.Status)
	require.Equal(t, 4, fetchRun.ArticleCount)
	require.NotNil(t, fetchRun.Cursor)
	require.Equal(t, "memory://raw/run-1.json", fetchRun.Metadata["raw_payload_uri"])

	dedupRun, err := h.runs.GetRun(ctx, "run-2")
	require.NoError(t, err)
	require.Equal(t, pipeline.StageDedup, dedupRun.Stage)
	require.Equal(t, 3, dedupRun.ArticleCount)
	require.Equal(t, 1, dedupRun.RemovedCount)
	require.Equal(t, "run-1", dedupRun.Metadata["source_run_id"])

	filterRun, err := h.runs.GetRun(ctx, "run-3")
	require.NoError(t, err)
	require.Equal(t, pipeline.StageFilter, filterRun.Stage)
	require.Equal(t, 2, filterRun.ArticleCount, "empty-title article dropped")
	require.Equal(t, 1, filterRun.RemovedCount)
	require.Equal(t, "run-2", filterRun.Metadata["source_run_id"])

	// Each stage's snapshot is keyed by its own run.
	raw, err := h.snapshots.ReadSnapshot(ctx, pipeline.NamespaceRaw, "run-1")
	require.NoError(t, err)
	require.Len(t, raw, 4)
	final, err := h.snapshots.ReadSnapshot(ctx, pipeline.NamespaceFinal, "run-3")
	require.NoError(t, err)
	require.Len(t, final, 2)
	require.Equal(t, "B", final[0].Title, "sorted newest first")

	// Raw payload archived for replay.
	data, ok := h.blobs.Get("raw/run-1.json")
	require.True(t, ok)
	require.Equal(t, source.raw, data)

	// One completion event per stage.
	msgs := h.publisher.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, TopicFetchCompleted, msgs[0].Topic)
	require.Equal(t, TopicDedupCompleted, msgs[1].Topic)
	require.Equal(t, TopicFilterCompleted, msgs[2].Topic)
}

func TestRunFetchProviderOutageFailsOpen(t *testing.T) {
	t.Parallel()

	source := &fakeSource{err: errors.New("upstream 503")}
	h := newHarness(t, source)
	ctx := context.Background()

	run, err := h.runner.RunFetch(ctx)
	require.NoError(t, err)
	require.Equal(t, pipeline.RunStatusSucceeded, run.Status)
	require.Equal(t, 0, run.ArticleCount)
	require.Equal(t, "upstream 503", run.Metadata["provider_error"])

	// The empty snapshot still commits so downstream stages can run.
	raw, err := h.snapshots.ReadSnapshot(ctx, pipeline.NamespaceRaw, run.ID)
	require.NoError(t, err)
	require.Empty(t, raw)

	// No raw payload to archive on failure.
	_, ok := h.blobs.Get("raw/" + run.ID + ".json")
	require.False(t, ok)

	require.Contains(t, h.emitter.kinds(), progress.KindProviderDegraded)
}

func TestRunFetchAdvancesCursor(t *testing.T) {
	t.Parallel()

	source := &fakeSource{raw: []byte(`{}`)}
	h := newHarness(t, source)
	ctx := context.Background()

	first, err := h.runner.RunFetch(ctx)
	require.NoError(t, err)
	_, err = h.runner.RunFetch(ctx)
	require.NoError(t, err)

	require.Len(t, source.queries, 2)
	// First query uses the default lookback window.
	require.WithinDuration(t,
		first.StartedAt.Add(-pipeline.DefaultLookback), source.queries[0].DateStart, time.Minute)
	// Second query resumes from the first run's stamped cursor.
	require.Equal(t, *first.Cursor, source.queries[1].DateStart)
}

func TestRunFetchOutageDoesNotAdvanceCursor(t *testing.T) {
	t.Parallel()

	source := &fakeSource{err: errors.New("connection reset")}
	h := newHarness(t, source)
	ctx := context.Background()

	outage, err := h.runner.RunFetch(ctx)
	require.NoError(t, err)
	require.Equal(t, pipeline.RunStatusSucceeded, outage.Status)
	require.Nil(t, outage.Cursor, "fail-open runs carry no cursor")

	source.setErr(nil)
	_, err = h.runner.RunFetch(ctx)
	require.NoError(t, err)

	require.Len(t, source.queries, 2)
	// The recovery fetch falls back to the lookback window rather than the
	// outage run's timestamp, so articles published during the outage are
	// still picked up.
	require.WithinDuration(t,
		outage.StartedAt.Add(-pipeline.DefaultLookback), source.queries[1].DateStart, time.Minute)
}

func TestRunDedupMissingSnapshotFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeSource{})
	ctx := context.Background()

	run, err := h.runner.RunDedup(ctx, "no-such-run")
	require.ErrorIs(t, err, pipeline.ErrSnapshotNotFound)
	require.Equal(t, pipeline.RunStatusFailed, run.Status)

	stored, getErr := h.runs.GetRun(ctx, run.ID)
	require.NoError(t, getErr)
	require.Equal(t, pipeline.RunStatusFailed, stored.Status)
	require.Contains(t, stored.ErrorText, "no-such-run")

	require.Contains(t, h.emitter.kinds(), progress.KindRunError)
	require.Empty(t, h.publisher.Messages(), "failed runs publish no completion event")
}

func TestRunStageResolvesUpstream(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		items: []pipeline.ProviderArticle{
			{Title: "A", URL: "https://a.example", Body: "b", DateTime: "2024-06-01T10:00:00Z"},
		},
		raw: []byte(`{}`),
	}
	h := newHarness(t, source)
	ctx := context.Background()

	fetchRun, err := h.runner.RunStage(ctx, pipeline.StageFetch)
	require.NoError(t, err)

	dedupRun, err := h.runner.RunStage(ctx, pipeline.StageDedup)
	require.NoError(t, err)
	require.Equal(t, fetchRun.ID, dedupRun.Metadata["source_run_id"])

	filterRun, err := h.runner.RunStage(ctx, pipeline.StageFilter)
	require.NoError(t, err)
	require.Equal(t, dedupRun.ID, filterRun.Metadata["source_run_id"])

	_, err = h.runner.RunStage(ctx, pipeline.StageName("bogus"))
	require.Error(t, err)
}

func TestRunStageDedupWithoutFetchRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeSource{})
	_, err := h.runner.RunStage(context.Background(), pipeline.StageDedup)
	require.ErrorIs(t, err, pipeline.ErrRunNotFound)
}
