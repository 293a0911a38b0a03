package types

import (
	"sort"
	"time"
)

// ChangeBatch is a coalesced, deduplicated set of changed paths.
type ChangeBatch struct {
	Paths []string
	// Events is how many raw notifications were folded into this batch
	Events int
	At     time.Time
}

// Merge folds other into b, keeping Paths sorted and unique.
func (b *ChangeBatch) Merge(other ChangeBatch) {
	seen := make(map[string]struct{}, len(b.Paths)+len(other.Paths))
	paths := make([]string, 0, len(b.Paths)+len(other.Paths))
	for _, p := range append(append([]string{}, b.Paths...), other.Paths...) {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	b.Paths = paths
	b.Events += other.Events
	if other.At.After(b.At) {
		b.At = other.At
	}
}

// Empty reports whether the batch carries no paths.
func (b ChangeBatch) Empty() bool {
	return len(b.Paths) == 0
}
