package camera

import (
	"sync"

	"visca-camera/internal/visca"
)

// State caches the last known value of each camera property. Readers never
// wait on the link.
type State struct {
	mu     sync.RWMutex
	values map[visca.Property]int
	subs   []func(visca.Property, int)
}

func newState() *State {
	return &State{values: make(map[visca.Property]int)}
}

// Set stores v for p and notifies subscribers if the value changed.
// It reports whether it did.
func (s *State) Set(p visca.Property, v int) bool {
	s.mu.Lock()
	old, ok := s.values[p]
	if ok && old == v {
		s.mu.Unlock()
		return false
	}
	s.values[p] = v
	subs := append([]func(visca.Property, int){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(p, v)
	}
	return true
}

// Get returns the cached value of p and whether one has been seen
func (s *State) Get(p visca.Property) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[p]
	return v, ok
}

// Bool reads p as an on/off value; unknown reads as off
func (s *State) Bool(p visca.Property) bool {
	v, _ := s.Get(p)
	return v != 0
}

// Int reads p; unknown reads as zero
func (s *State) Int(p visca.Property) int {
	v, _ := s.Get(p)
	return v
}

// Subscribe registers fn for value changes
func (s *State) Subscribe(fn func(visca.Property, int)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Snapshot copies every known value
func (s *State) Snapshot() map[visca.Property]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[visca.Property]int, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
