package pipeline

// Dedup removes records sharing the same URL, keeping the first occurrence
// in input order. Records with an empty URL are never merged with each
// other: absence of the key is not a key, so each one passes through as
// unique. The input slice is not modified.
func Dedup(input []Article) ([]Article, DedupReport) {
	out := make([]Article, 0, len(input))
	seen := make(map[string]struct{}, len(input))
	for _, a := range input {
		if a.URL != "" {
			if _, dup := seen[a.URL]; dup {
				continue
			}
			seen[a.URL] = struct{}{}
		}
		out = append(out, a)
	}
	return out, DedupReport{
		TotalArticles:     len(out),
		DuplicatesRemoved: len(input) - len(out),
	}
}
