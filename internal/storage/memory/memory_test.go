package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adtechlab/newswire/internal/pipeline"
)

func TestSnapshotStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewSnapshotStore()
	ctx := context.Background()

	articles := []pipeline.Article{{ID: "1", URL: "a"}, {ID: "2", URL: "b"}}
	require.NoError(t, store.WriteSnapshot(ctx, pipeline.NamespaceRaw, "run-1", articles))

	got, err := store.ReadSnapshot(ctx, pipeline.NamespaceRaw, "run-1")
	require.NoError(t, err)
	require.Equal(t, articles, got)

	// Snapshots are isolated per run and per namespace.
	_, err = store.ReadSnapshot(ctx, pipeline.NamespaceRaw, "run-2")
	require.ErrorIs(t, err, pipeline.ErrSnapshotNotFound)
	_, err = store.ReadSnapshot(ctx, pipeline.NamespaceFinal, "run-1")
	require.ErrorIs(t, err, pipeline.ErrSnapshotNotFound)
}

func TestSnapshotStoreWriteDoesNotAliasInput(t *testing.T) {
	t.Parallel()

	store := NewSnapshotStore()
	ctx := context.Background()

	articles := []pipeline.Article{{ID: "1", Title: "orig"}}
	require.NoError(t, store.WriteSnapshot(ctx, pipeline.NamespaceRaw, "run-1", articles))
	articles[0].Title = "mutated"

	got, err := store.ReadSnapshot(ctx, pipeline.NamespaceRaw, "run-1")
	require.NoError(t, err)
	require.Equal(t, "orig", got[0].Title)
}

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	started := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	run := pipeline.Run{
		ID:        "run-1",
		Stage:     pipeline.StageFetch,
		Status:    pipeline.RunStatusRunning,
		StartedAt: started,
	}
	require.NoError(t, store.StartRun(ctx, run))
	require.Error(t, store.StartRun(ctx, run), "duplicate run id")

	finished := started.Add(time.Minute)
	cursor := started.Add(30 * time.Second)
	run.Status = pipeline.RunStatusSucceeded
	run.FinishedAt = &finished
	run.ArticleCount = 5
	run.Cursor = &cursor
	require.NoError(t, store.CompleteRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, pipeline.RunStatusSucceeded, got.Status)
	require.Equal(t, 5, got.ArticleCount)

	require.ErrorIs(t, store.CompleteRun(ctx, pipeline.Run{ID: "ghost"}), pipeline.ErrRunNotFound)
}

func TestRunStoreLastRunPicksNewest(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, store.StartRun(ctx, pipeline.Run{
			ID:        id,
			Stage:     pipeline.StageFetch,
			Status:    pipeline.RunStatusSucceeded,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	// A failed run must not win the lookup.
	require.NoError(t, store.StartRun(ctx, pipeline.Run{
		ID:        "failed-latest",
		Stage:     pipeline.StageFetch,
		Status:    pipeline.RunStatusFailed,
		StartedAt: base.Add(10 * time.Hour),
	}))

	got, err := store.LastRun(ctx, pipeline.StageFetch, pipeline.RunStatusSucceeded)
	require.NoError(t, err)
	require.Equal(t, "new", got.ID)

	_, err = store.LastRun(ctx, pipeline.StageDedup, pipeline.RunStatusSucceeded)
	require.ErrorIs(t, err, pipeline.ErrRunNotFound)
}

func TestRunStoreListRunsWindowAndStatus(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	statuses := []pipeline.RunStatus{
		pipeline.RunStatusFailed,
		pipeline.RunStatusSucceeded,
		pipeline.RunStatusFailed,
	}
	for i, st := range statuses {
		require.NoError(t, store.StartRun(ctx, pipeline.Run{
			ID:        string(rune('a' + i)),
			Stage:     pipeline.StageFilter,
			Status:    st,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	failed := pipeline.RunStatusFailed
	runs, err := store.ListRuns(ctx, &failed, base, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1, "only the failed run inside the window")
	require.Equal(t, "c", runs[0].ID)
}

func TestBlobStorePutObject(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "raw/run-1.json", "application/json", []byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, "memory://raw/run-1.json", uri)

	data, ok := store.Get("raw/run-1.json")
	require.True(t, ok)
	require.Equal(t, []byte(`{}`), data)
}
