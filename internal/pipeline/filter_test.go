package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFilterRejectionPredicates(t *testing.T) {
	t.Parallel()

	input := []Article{
		{Title: "", Body: "B", PublishedAt: "2024-01-01"},
		{Title: "T", Body: "[Removed]", PublishedAt: "2024-01-02"},
		{Title: "[Removed]", Body: "B2", PublishedAt: "2024-01-02"},
		{Title: "T3", Body: "B3", PublishedAt: "not-a-date"},
		{Title: "T4", Body: "B4", PublishedAt: "2024-01-03"},
	}

	out, report := Filter(input)

	require.Len(t, out, 1)
	require.Equal(t, "T4", out[0].Title)
	require.Equal(t, 4, report.RemovedArticles)
	require.Equal(t, 1, report.TotalArticles)
}

func TestFilterRejectsEmptyBodyAndMissingTimestamp(t *testing.T) {
	t.Parallel()

	input := []Article{
		{Title: "T1", Body: "  ", PublishedAt: "2024-01-01"},
		{Title: "T2", Body: "B2", PublishedAt: ""},
	}

	out, report := Filter(input)

	require.Empty(t, out)
	require.Equal(t, 2, report.RemovedArticles)
}

func TestFilterNormalizesTimestamps(t *testing.T) {
	t.Parallel()

	input := []Article{
		{Title: "iso", Body: "B", PublishedAt: "2024-03-01T10:30:00Z"},
		{Title: "naive", Body: "B", PublishedAt: "2024-03-01 08:00:00"},
		{Title: "date-only", Body: "B", PublishedAt: "2024-02-28"},
	}

	out, report := Filter(input)

	require.Len(t, out, 3)
	require.Equal(t, 0, report.RemovedArticles)
	for _, a := range out {
		require.Equal(t, a.PublishedAt, CanonicalTimestamp(a.Published))
		require.Equal(t, time.UTC, a.Published.Location())
	}
}

func TestFilterSortsMostRecentFirst(t *testing.T) {
	t.Parallel()

	input := []Article{
		{Title: "old", Body: "B", PublishedAt: "2024-01-01"},
		{Title: "new", Body: "B", PublishedAt: "2024-01-03"},
		{Title: "mid", Body: "B", PublishedAt: "2024-01-02"},
	}

	out, _ := Filter(input)

	require.Equal(t, []string{"new", "mid", "old"},
		[]string{out[0].Title, out[1].Title, out[2].Title})
}

func TestFilterStableOnTies(t *testing.T) {
	t.Parallel()

	input := []Article{
		{Title: "first", Body: "B", PublishedAt: "2024-01-01T12:00:00Z"},
		{Title: "second", Body: "B", PublishedAt: "2024-01-01T12:00:00Z"},
		{Title: "third", Body: "B", PublishedAt: "2024-01-01T12:00:00Z"},
	}

	out, _ := Filter(input)

	require.Equal(t, []string{"first", "second", "third"},
		[]string{out[0].Title, out[1].Title, out[2].Title})
}

func TestFilterMonotonicOnValidInput(t *testing.T) {
	t.Parallel()

	input := []Article{
		{Title: "a", Body: "B", PublishedAt: "2024-01-03"},
		{Title: "b", Body: "B", PublishedAt: "2024-01-02"},
		{Title: "c", Body: "B", PublishedAt: "2024-01-01"},
	}

	once, first := Filter(input)
	twice, second := Filter(once)

	require.Equal(t, once, twice)
	require.Equal(t, 0, first.RemovedArticles)
	require.Equal(t, 0, second.RemovedArticles)
}

func TestFilterCountInvariant(t *testing.T) {
	t.Parallel()

	input := []Article{
		{Title: "", Body: "B", PublishedAt: "2024-01-01"},
		{Title: "ok", Body: "B", PublishedAt: "2024-01-01"},
		{Title: "bad-ts", Body: "B", PublishedAt: "garbage!!!"},
	}

	_, report := Filter(input)

	require.Equal(t, len(input), report.TotalArticles+report.RemovedArticles)
}

func TestFilterReportPreviewAndRange(t *testing.T) {
	t.Parallel()

	input := make([]Article, 0, 12)
	for day := 1; day <= 12; day++ {
		input = append(input, Article{
			Title:       "t",
			Body:        "b",
			SourceName:  "src",
			PublishedAt: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
		})
	}

	out, report := Filter(input)

	require.Len(t, out, 12)
	require.Len(t, report.Preview, 10)
	// Preview covers the most recent ten in sorted order.
	require.Equal(t, "2024-01-12T00:00:00Z", report.Preview[0].PublishedAt)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), report.DateRange.Min)
	require.Equal(t, time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC), report.DateRange.Max)
}
