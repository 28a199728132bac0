package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/adtechlab/newswire/internal/pipeline"
)

func TestWriteSnapshotCommitsAllRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSnapshotStore(mock)
	require.NoError(t, err)

	fetchedAt := time.Unix(1700000000, 0).UTC()
	articles := []pipeline.Article{
		{ID: "id-1", Title: "A", URL: "https://example.com/a", Body: "b", PublishedAt: "2024-01-01", FetchedAt: fetchedAt},
		{ID: "id-2", Title: "B", URL: "https://example.com/b", Body: "b", PublishedAt: "2024-01-02", FetchedAt: fetchedAt},
	}

	mock.ExpectBegin()
	for _, a := range articles {
		mock.ExpectExec("INSERT INTO raw_articles").
			WithArgs(
				"run-1",
				a.ID,
				a.Title,
				a.URL,
				a.Body,
				a.PublishedAt,
				(*time.Time)(nil),
				a.SourceName,
				a.SourceURI,
				a.FetchedAt,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	err = store.WriteSnapshot(context.Background(), pipeline.NamespaceRaw, "run-1", articles)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteSnapshotRollsBackOnInsertFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSnapshotStore(mock)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO final_articles").
		WithArgs(
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
		).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	err = store.WriteSnapshot(context.Background(), pipeline.NamespaceFinal, "run-9", []pipeline.Article{{ID: "x"}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteSnapshotRejectsUnknownNamespace(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSnapshotStore(mock)
	require.NoError(t, err)

	err = store.WriteSnapshot(context.Background(), pipeline.Namespace("bogus"), "run-1", nil)
	require.Error(t, err)

	err = store.WriteSnapshot(context.Background(), pipeline.NamespaceRaw, "", nil)
	require.Error(t, err)
}

func TestReadSnapshotScansRowsInOrder(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSnapshotStore(mock)
	require.NoError(t, err)

	fetchedAt := time.Unix(1700000000, 0).UTC()
	published := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"article_id", "title", "url", "body", "published_at", "published",
		"source_name", "source_uri", "fetched_at",
	}).
		AddRow("id-1", "A", "https://example.com/a", "b", "2024-01-01", (*time.Time)(nil), "Src", "src.com", fetchedAt).
		AddRow("id-2", "B", "https://example.com/b", "b", "2024-01-02T00:00:00Z", &published, "Src", "src.com", fetchedAt)

	mock.ExpectQuery("SELECT (.+) FROM processed_articles").
		WithArgs("run-2").
		WillReturnRows(rows)

	out, err := store.ReadSnapshot(context.Background(), pipeline.NamespaceProcessed, "run-2")
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "id-1", out[0].ID)
	require.True(t, out[0].Published.IsZero())
	require.Equal(t, published, out[1].Published)
	require.NoError(t, mock.ExpectationsWereMet())
}
