package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultLookback is the bootstrap window used when no prior fetch cursor
// exists.
const DefaultLookback = 7 * 24 * time.Hour

// FetchConfig captures the fixed query parameters of the fetch stage.
type FetchConfig struct {
	// Categories is a conjunction of topic category URIs; an article must
	// match every one of them.
	Categories []string
	Lang       string
	MaxItems   int
	// Lookback is the bootstrap window; zero means DefaultLookback.
	Lookback time.Duration
}

// Validate checks for obviously bad fetch configuration.
func (c FetchConfig) Validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("fetch.categories must include at least one category URI")
	}
	if c.Lang == "" {
		return fmt.Errorf("fetch.lang must be set")
	}
	if c.MaxItems <= 0 {
		return fmt.Errorf("fetch.max_items must be > 0")
	}
	return nil
}

// Fetcher executes the fetch stage: query the provider incrementally from
// a cursor, normalize per record, and stamp provenance.
type Fetcher struct {
	source ArticleSource
	clock  Clock
	hasher Hasher
	cfg    FetchConfig
	logger *zap.Logger
}

// NewFetcher constructs a Fetcher.
func NewFetcher(source ArticleSource, clock Clock, hasher Hasher, cfg FetchConfig, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		source: source,
		clock:  clock,
		hasher: hasher,
		cfg:    cfg,
		logger: logger,
	}
}

// Fetch queries the provider for articles published strictly after cursor
// and normalizes the results. Provider failures are recovered locally:
// the stage logs a warning, records the error in the report, and returns
// an empty batch so the run still completes. Raw is the undecoded
// provider payload for archival; nil on failure.
func (f *Fetcher) Fetch(ctx context.Context, cursor time.Time) ([]Article, []byte, FetchReport, error) {
	fetchedAt := f.clock.Now()
	report := FetchReport{FromDate: cursor, FetchedAt: fetchedAt}

	items, raw, err := f.source.Search(ctx, Query{
		Categories: f.cfg.Categories,
		Lang:       f.cfg.Lang,
		DateStart:  cursor,
		MaxItems:   f.cfg.MaxItems,
	})
	if err != nil {
		// Fail open: a transient provider outage yields an empty but
		// successful run so the downstream cadence is preserved.
		f.logger.Warn("provider query failed; continuing with empty batch",
			zap.Time("from_date", cursor),
			zap.Error(err),
		)
		report.ProviderError = err.Error()
		return []Article{}, nil, report, nil
	}

	articles := make([]Article, 0, len(items))
	for _, item := range items {
		a, err := f.normalize(item, fetchedAt)
		if err != nil {
			report.Skipped++
			f.logger.Warn("skipping malformed provider record", zap.Error(err))
			continue
		}
		articles = append(articles, a)
	}

	report.NumArticles = len(articles)
	report.DateRange = rawDateRange(articles)
	f.logger.Info("fetched articles",
		zap.Int("count", len(articles)),
		zap.Int("skipped", report.Skipped),
		zap.Time("from_date", cursor),
	)
	return articles, raw, report, nil
}

// CursorOrDefault resolves the incremental lower bound: the last
// successful fetch run's cursor, or the fixed lookback window on the
// first run. Reading the cursor is the one run-history lookup that feeds
// back into pipeline logic.
func (f *Fetcher) CursorOrDefault(ctx context.Context, runs RunStore) (time.Time, error) {
	last, err := runs.LastRun(ctx, StageFetch, RunStatusSucceeded)
	switch {
	case err == nil && last.Cursor != nil:
		return *last.Cursor, nil
	case err == nil || errors.Is(err, ErrRunNotFound):
		lookback := f.cfg.Lookback
		if lookback <= 0 {
			lookback = DefaultLookback
		}
		fallback := f.clock.Now().Add(-lookback)
		f.logger.Info("no prior fetch cursor; using default lookback",
			zap.Time("from_date", fallback))
		return fallback, nil
	default:
		return time.Time{}, fmt.Errorf("look up fetch cursor: %w", err)
	}
}

// normalize maps one provider item into the flat Article shape. It fails
// per record, never per batch: a missing URL makes the record invalid
// because the URL is both the dedup key and the identity hash input.
func (f *Fetcher) normalize(item ProviderArticle, fetchedAt time.Time) (Article, error) {
	if item.URL == "" {
		return Article{}, fmt.Errorf("provider record %q has no url", item.Title)
	}
	id, err := f.hasher.Hash([]byte(item.URL))
	if err != nil {
		return Article{}, fmt.Errorf("hash article url: %w", err)
	}
	published := item.DateTime
	if published == "" {
		published = item.Date
	}
	return Article{
		ID:          id,
		Title:       item.Title,
		URL:         item.URL,
		Body:        item.Body,
		PublishedAt: published,
		SourceName:  item.SourceName,
		SourceURI:   item.SourceURI,
		FetchedAt:   fetchedAt,
	}, nil
}

// rawDateRange parses timestamps leniently for reporting only; records
// that fail to parse simply do not contribute. The articles themselves
// keep their raw timestamps until the filter stage.
func rawDateRange(articles []Article) DateRange {
	var r DateRange
	for _, a := range articles {
		ts, err := ParseTimestamp(a.PublishedAt)
		if err != nil {
			continue
		}
		if r.Min.IsZero() || ts.Before(r.Min) {
			r.Min = ts
		}
		if r.Max.IsZero() || ts.After(r.Max) {
			r.Max = ts
		}
	}
	return r
}
