// Package store holds the published artifacts. Readers always see one
// complete snapshot: a commit builds the next snapshot aside and swaps it
// in with a single atomic pointer store.
package store

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/slate/internal/build"
	"github.com/conneroisu/slate/internal/types"
)

// Entry is one published artifact and the key it was built from.
type Entry struct {
	ID       string
	Key      build.CacheKey
	Artifact *types.BuildArtifact
}

// Route returns the route the entry is published at.
func (e *Entry) Route() string {
	return e.Artifact.Route
}

// Snapshot is an immutable view of every published artifact.
type Snapshot struct {
	Generation uint64
	byRoute    map[string]*Entry
	byID       map[string]*Entry
}

func emptySnapshot() *Snapshot {
	return &Snapshot{byRoute: map[string]*Entry{}, byID: map[string]*Entry{}}
}

// Get returns the artifact published at route.
func (s *Snapshot) Get(route string) (*types.BuildArtifact, bool) {
	e, ok := s.byRoute[route]
	if !ok {
		return nil, false
	}
	return e.Artifact, true
}

// Entry returns the entry published for an entity id.
func (s *Snapshot) Entry(id string) (*Entry, bool) {
	e, ok := s.byID[id]
	return e, ok
}

// Routes returns every published route, sorted.
func (s *Snapshot) Routes() []string {
	routes := make([]string, 0, len(s.byRoute))
	for r := range s.byRoute {
		routes = append(routes, r)
	}
	sort.Strings(routes)
	return routes
}

// Entries returns every entry sorted by route.
func (s *Snapshot) Entries() []*Entry {
	entries := make([]*Entry, 0, len(s.byRoute))
	for _, r := range s.Routes() {
		entries = append(entries, s.byRoute[r])
	}
	return entries
}

// Len returns the number of published artifacts.
func (s *Snapshot) Len() int {
	return len(s.byRoute)
}

// Diff describes what one commit changed.
type Diff struct {
	// Written are the entries added or replaced, sorted by route
	Written []*Entry
	// Removed are routes no longer published, sorted
	Removed []string
}

// Empty reports whether the commit changed nothing.
func (d Diff) Empty() bool {
	return len(d.Written) == 0 && len(d.Removed) == 0
}

// Store publishes snapshots. Commits are serialized; reads never block.
type Store struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
}

// New creates an empty store.
func New() *Store {
	s := &Store{}
	s.current.Store(emptySnapshot())
	return s
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Get returns the artifact currently published at route.
func (s *Store) Get(route string) (*types.BuildArtifact, bool) {
	return s.Snapshot().Get(route)
}

// EntryForID returns the entry currently published for an entity.
func (s *Store) EntryForID(id string) (*Entry, bool) {
	return s.Snapshot().Entry(id)
}

// Commit publishes upserts and withdraws the entries of removeIDs in one
// step. An upsert replaces any entry with the same id; when its route
// changed the old route is withdrawn.
func (s *Store) Commit(upserts []*Entry, removeIDs []string) (*Snapshot, Diff) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	next := &Snapshot{
		Generation: prev.Generation + 1,
		byRoute:    make(map[string]*Entry, len(prev.byRoute)+len(upserts)),
		byID:       make(map[string]*Entry, len(prev.byID)+len(upserts)),
	}
	for r, e := range prev.byRoute {
		next.byRoute[r] = e
	}
	for id, e := range prev.byID {
		next.byID[id] = e
	}

	removed := map[string]struct{}{}
	withdraw := func(id string) {
		old, ok := next.byID[id]
		if !ok {
			return
		}
		delete(next.byID, id)
		if cur, ok := next.byRoute[old.Route()]; ok && cur.ID == id {
			delete(next.byRoute, old.Route())
			removed[old.Route()] = struct{}{}
		}
	}

	for _, id := range removeIDs {
		withdraw(id)
	}

	var diff Diff
	for _, e := range upserts {
		withdraw(e.ID)
		next.byID[e.ID] = e
		next.byRoute[e.Route()] = e
		delete(removed, e.Route())
		diff.Written = append(diff.Written, e)
	}

	for r := range removed {
		diff.Removed = append(diff.Removed, r)
	}
	sort.Strings(diff.Removed)
	sort.Slice(diff.Written, func(i, j int) bool { return diff.Written[i].Route() < diff.Written[j].Route() })

	s.current.Store(next)
	return next, diff
}
