package registry

import (
	"reflect"
	"sync"
)

// Set is an insertion-ordered set of handlers keyed by identity.
type Set[H comparable] struct {
	mu    sync.RWMutex
	index map[H]struct{}
	order []H
}

// NewSet creates an empty set.
func NewSet[H comparable]() *Set[H] {
	return &Set[H]{index: make(map[H]struct{})}
}

// Add stores h unless it is already present or cannot be used as a key.
func (s *Set[H]) Add(h H) bool {
	if !usableKey(h) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[h]; ok {
		return false
	}
	s.index[h] = struct{}{}
	s.order = append(s.order, h)
	return true
}

// Remove deletes h and reports whether it was present.
func (s *Set[H]) Remove(h H) bool {
	if !usableKey(h) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[h]; !ok {
		return false
	}
	delete(s.index, h)
	for i, cur := range s.order {
		if cur == h {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Snapshot returns the members in registration order.
func (s *Set[H]) Snapshot() []H {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]H, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the member count.
func (s *Set[H]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// usableKey rejects nil interfaces and dynamic types that would panic as map keys.
func usableKey(h any) bool {
	v := reflect.ValueOf(h)
	if !v.IsValid() {
		return false
	}
	return v.Comparable()
}
