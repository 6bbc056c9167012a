package recall

import "sort"

// locatable is anything identifiable by a source location and a ranking
// score, ported from the original server's search/utils.rs Locatable
// trait + deduplicate_by_location.
type locatable interface {
	location() (filePath string, startLine int64)
	rankScore() float64
}

// deduplicateByLocation collapses duplicate hits at the same
// (filePath, startLine), keeping the highest-scoring one, and returns the
// survivors sorted by score descending.
func deduplicateByLocation[T locatable](items []T) []T {
	type key struct {
		path string
		line int64
	}
	best := make(map[key]T, len(items))
	for _, item := range items {
		path, line := item.location()
		k := key{path, line}
		if existing, ok := best[k]; !ok || item.rankScore() > existing.rankScore() {
			best[k] = item
		}
	}

	out := make([]T, 0, len(best))
	for _, v := range best {
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].rankScore() > out[j].rankScore() })
	return out
}
