package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Layouts the provider is known to emit. Tried in order before falling
// back to the lenient parser.
var acceptedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a provider timestamp string into UTC. It accepts
// ISO-8601 with or without timezone, a space-separated datetime, and a
// date-only form; anything else goes through dateparse as a last attempt.
// Values without a zone are interpreted as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range acceptedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

// CanonicalTimestamp renders t in the single stored representation.
func CanonicalTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
