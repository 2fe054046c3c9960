// Package feedback publishes named values derived from device state.
//
// A Feedback never stores its value. Its value function is evaluated on
// FireUpdate and subscribers hear about it only when the result differs from
// the last one published.
package feedback

import "sync"

// Observable is a named feedback of any value type
type Observable interface {
	Name() string
	Current() any
	FireUpdate()
	Subscribe(fn func(name string, value any)) (unsubscribe func())
}

// Feedback is a named value computed by fn
type Feedback[T comparable] struct {
	name string
	fn   func() T

	mu     sync.Mutex
	last   T
	primed bool
	nextID int
	subs   map[int]func(string, any)
}

// Bool and Int are the feedback kinds a camera exposes
type (
	Bool = Feedback[bool]
	Int  = Feedback[int]
)

// New creates a feedback named name
func New[T comparable](name string, fn func() T) *Feedback[T] {
	return &Feedback[T]{
		name: name,
		fn:   fn,
		subs: make(map[int]func(string, any)),
	}
}

// NewBool creates a boolean feedback
func NewBool(name string, fn func() bool) *Bool {
	return New(name, fn)
}

// NewInt creates an integer feedback
func NewInt(name string, fn func() int) *Int {
	return New(name, fn)
}

func (f *Feedback[T]) Name() string {
	return f.name
}

// Value evaluates the feedback
func (f *Feedback[T]) Value() T {
	return f.fn()
}

func (f *Feedback[T]) Current() any {
	return f.fn()
}

// FireUpdate re-evaluates the feedback and notifies subscribers on change
func (f *Feedback[T]) FireUpdate() {
	v := f.fn()

	f.mu.Lock()
	if f.primed && v == f.last {
		f.mu.Unlock()
		return
	}
	f.last = v
	f.primed = true
	subs := make([]func(string, any), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(f.name, v)
	}
}

// Subscribe registers fn for changes and returns a function removing it
func (f *Feedback[T]) Subscribe(fn func(name string, value any)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.subs[id] = fn

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Set is an ordered collection of feedbacks addressed by name
type Set struct {
	order []Observable
	byKey map[string]Observable
}

// NewSet builds a set from fbs, keeping their order
func NewSet(fbs ...Observable) *Set {
	s := &Set{byKey: make(map[string]Observable, len(fbs))}
	for _, fb := range fbs {
		s.order = append(s.order, fb)
		s.byKey[fb.Name()] = fb
	}
	return s
}

// Get returns the feedback called name
func (s *Set) Get(name string) (Observable, bool) {
	fb, ok := s.byKey[name]
	return fb, ok
}

// All returns the feedbacks in registration order
func (s *Set) All() []Observable {
	return append([]Observable(nil), s.order...)
}

// Snapshot evaluates every feedback
func (s *Set) Snapshot() map[string]any {
	out := make(map[string]any, len(s.order))
	for _, fb := range s.order {
		out[fb.Name()] = fb.Current()
	}
	return out
}

// FireUpdate re-evaluates every feedback
func (s *Set) FireUpdate() {
	for _, fb := range s.order {
		fb.FireUpdate()
	}
}

// Subscribe registers fn on every feedback in the set
func (s *Set) Subscribe(fn func(name string, value any)) func() {
	unsubs := make([]func(), 0, len(s.order))
	for _, fb := range s.order {
		unsubs = append(unsubs, fb.Subscribe(fn))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
