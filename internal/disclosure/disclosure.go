// Package disclosure tracks which result groups are expanded in a
// multi-group presentation.
package disclosure

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// State is the set of expanded group indices for one settled result set.
// The zero value is an empty set ready to use.
type State struct {
	mu       sync.RWMutex
	expanded map[int]struct{}
}

// New returns an empty State.
func New() *State {
	return &State{expanded: make(map[int]struct{})}
}

// Seed resets the set for a result set of n groups. More than one group opens
// the first; a single group is always rendered expanded so the set stays empty.
func (s *State) Seed(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expanded = make(map[int]struct{})
	if n > 1 {
		s.expanded[0] = struct{}{}
	}
}

// Reset empties the set.
func (s *State) Reset() {
	s.Seed(0)
}

// Toggle flips membership of index. Negative indices are ignored.
func (s *State) Toggle(index int) {
	if index < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expanded == nil {
		s.expanded = make(map[int]struct{})
	}
	if _, ok := s.expanded[index]; ok {
		delete(s.expanded, index)
		return
	}
	s.expanded[index] = struct{}{}
}

// IsExpanded reports whether index is in the set.
func (s *State) IsExpanded(index int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.expanded[index]
	return ok
}

// ExpandAll adds every index in [0, n).
func (s *State) ExpandAll(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expanded == nil {
		s.expanded = make(map[int]struct{}, n)
	}
	for i := range n {
		s.expanded[i] = struct{}{}
	}
}

// Expanded returns the expanded indices in ascending order.
func (s *State) Expanded() []int {
	s.mu.RLock()
	keys := lo.Keys(s.expanded)
	s.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

// Len returns the number of expanded groups.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.expanded)
}

// ShowExpanded reports whether group index of n should be rendered expanded.
// A lone group is always shown expanded regardless of set membership.
func (s *State) ShowExpanded(index, n int) bool {
	if n == 1 && index == 0 {
		return true
	}
	return s.IsExpanded(index)
}
