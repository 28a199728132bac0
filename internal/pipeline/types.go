// Package pipeline defines core types shared across the ETL stages.
package pipeline

import (
	"time"
)

// StageName identifies one of the three sequential transformation stages.
type StageName string

// Stage names persisted in the run store.
const (
	StageFetch  StageName = "fetch"
	StageDedup  StageName = "dedup"
	StageFilter StageName = "filter"
)

// Valid reports whether s is a known stage name.
func (s StageName) Valid() bool {
	switch s {
	case StageFetch, StageDedup, StageFilter:
		return true
	}
	return false
}

// RunStatus represents the lifecycle state of a stage run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Article is the flat record shape that flows through all three stages.
// PublishedAt carries the provider's raw timestamp string until the filter
// stage normalizes it; Published stays zero until then.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Body        string    `json:"body"`
	PublishedAt string    `json:"published_at"`
	Published   time.Time `json:"published,omitempty"`
	SourceName  string    `json:"source_name"`
	SourceURI   string    `json:"source_uri"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// DateRange spans the min/max publication timestamps in a snapshot.
type DateRange struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

// IsZero reports whether no range was computed (empty snapshot).
func (r DateRange) IsZero() bool {
	return r.Min.IsZero() && r.Max.IsZero()
}

// PreviewEntry is one row of the bounded preview attached to run metadata.
type PreviewEntry struct {
	Title       string `json:"title"`
	SourceName  string `json:"source_name"`
	PublishedAt string `json:"published_at"`
}

// FetchReport is the metadata attached to a fetch run's output.
// ProviderError is non-empty when the provider query failed and the stage
// fell open to an empty batch; a genuinely empty result leaves it blank so
// the two outcomes stay distinguishable for alerting.
type FetchReport struct {
	NumArticles   int       `json:"num_articles"`
	Skipped       int       `json:"skipped"`
	FromDate      time.Time `json:"from_date"`
	FetchedAt     time.Time `json:"fetched_at"`
	DateRange     DateRange `json:"date_range"`
	ProviderError string    `json:"provider_error,omitempty"`
}

// DedupReport is the metadata attached to a dedup run's output.
type DedupReport struct {
	TotalArticles     int `json:"total_articles"`
	DuplicatesRemoved int `json:"duplicates_removed"`
}

// FilterReport is the metadata attached to a filter run's output.
type FilterReport struct {
	TotalArticles   int            `json:"total_articles"`
	RemovedArticles int            `json:"removed_articles"`
	DateRange       DateRange      `json:"date_range"`
	Preview         []PreviewEntry `json:"preview"`
}

// Run is the persisted record of one stage execution.
type Run struct {
	ID           string         `json:"id"`
	Stage        StageName      `json:"stage"`
	Status       RunStatus      `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	ErrorText    string         `json:"error_text,omitempty"`
	ArticleCount int            `json:"article_count"`
	RemovedCount int            `json:"removed_count"`
	// Cursor is set only on fetch runs: the batch's FetchedAt, which the
	// next fetch run reads back as its lower-bound date.
	Cursor   *time.Time     `json:"cursor,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Query captures everything the fetch stage sends to the article provider.
// Categories is a conjunction: every category must apply.
type Query struct {
	Categories []string
	Lang       string
	DateStart  time.Time
	MaxItems   int
}

// ProviderArticle is the loosely-shaped item returned by the article
// provider, before per-record normalization into Article.
type ProviderArticle struct {
	Title      string
	URL        string
	Body       string
	DateTime   string
	Date       string
	SourceName string
	SourceURI  string
}

// Namespace addresses one of the three snapshot datasets.
type Namespace string

// Snapshot namespaces, one per stage output.
const (
	NamespaceRaw       Namespace = "raw"
	NamespaceProcessed Namespace = "processed"
	NamespaceFinal     Namespace = "final"
)

// PreviewOf builds the bounded preview (at most n entries) over articles,
// preserving their order.
func PreviewOf(articles []Article, n int) []PreviewEntry {
	if n > len(articles) {
		n = len(articles)
	}
	out := make([]PreviewEntry, 0, n)
	for _, a := range articles[:n] {
		out = append(out, PreviewEntry{
			Title:       a.Title,
			SourceName:  a.SourceName,
			PublishedAt: a.PublishedAt,
		})
	}
	return out
}

// RangeOf computes the min/max Published over articles, ignoring records
// whose timestamp has not been normalized yet.
func RangeOf(articles []Article) DateRange {
	var r DateRange
	for _, a := range articles {
		if a.Published.IsZero() {
			continue
		}
		if r.Min.IsZero() || a.Published.Before(r.Min) {
			r.Min = a.Published
		}
		if r.Max.IsZero() || a.Published.After(r.Max) {
			r.Max = a.Published
		}
	}
	return r
}
