package pipeline

import (
	"sort"
	"strings"
)

// removedSentinel is the placeholder text some providers substitute for
// withdrawn article bodies.
const removedSentinel = "[Removed]"

// previewSize bounds the preview attached to the filter report.
const previewSize = 10

// Filter applies the validity predicates, normalizes timestamps to the
// canonical representation, and sorts the survivors by publication time,
// most recent first. A record is dropped if its title or body is empty or
// the "[Removed]" sentinel, or its timestamp fails to parse; every drop
// counts toward RemovedArticles. The sort is stable, so equal timestamps
// keep their pre-sort relative order.
func Filter(input []Article) ([]Article, FilterReport) {
	out := make([]Article, 0, len(input))
	for _, a := range input {
		if strings.TrimSpace(a.Title) == "" || a.Title == removedSentinel {
			continue
		}
		if strings.TrimSpace(a.Body) == "" || a.Body == removedSentinel {
			continue
		}
		ts, err := ParseTimestamp(a.PublishedAt)
		if err != nil {
			continue
		}
		a.Published = ts
		a.PublishedAt = CanonicalTimestamp(ts)
		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Published.After(out[j].Published)
	})

	return out, FilterReport{
		TotalArticles:   len(out),
		RemovedArticles: len(input) - len(out),
		DateRange:       RangeOf(out),
		Preview:         PreviewOf(out, previewSize),
	}
}
