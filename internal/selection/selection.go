// Package selection holds the talks the operator has staged for a group
// action. A Set is created once and handed to every view that reads or
// changes it.
package selection

import (
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/gravitrone/tdome/internal/api"
)

// Set is a set of talks unique by talk id. It is safe for concurrent use.
type Set struct {
	mu    sync.Mutex
	talks map[int]api.Talk
}

// New returns an empty set.
func New() *Set {
	return &Set{talks: map[int]api.Talk{}}
}

// Toggle adds t if absent and removes it if present. It reports whether t
// is selected afterwards.
func (s *Set) Toggle(t api.Talk) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.talks[t.ID]; ok {
		delete(s.talks, t.ID)
		return false
	}
	s.talks[t.ID] = t
	return true
}

// Contains reports whether the talk with id is selected.
func (s *Set) Contains(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.talks[id]
	return ok
}

// Len returns the number of selected talks.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.talks)
}

// IDs returns the selected talk ids, ascending.
func (s *Set) IDs() []int {
	s.mu.Lock()
	ids := lo.Keys(s.talks)
	s.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// Drain returns the selected talks ascending by id and empties the set.
func (s *Set) Drain() []api.Talk {
	s.mu.Lock()
	out := lo.Values(s.talks)
	s.talks = map[int]api.Talk{}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b api.Talk) int { return a.ID - b.ID })
	return out
}

// Forget drops talks that no longer exist from the selection. It never
// removes a talk the store still has; Drain is the only way to spend one.
func (s *Set) Forget(keep func(id int) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.talks {
		if !keep(id) {
			delete(s.talks, id)
		}
	}
}
