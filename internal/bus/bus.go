// Package bus is the in-process event bus connecting transports, the state
// store and the preview relay.
package bus

import (
	"sync"

	"github.com/livetemplate/sandbox/internal/demo"
)

// RenderSignal asks the preview to re-render. It carries no payload: the
// preview reads whatever the store holds when it renders.
type RenderSignal struct{}

// Bus carries the two sandbox signals.
type Bus struct {
	// LoadDemo requests that a demo replace the current boxes.
	LoadDemo Topic[demo.Ref]

	// Render is published once per code update while autoRun is on.
	Render Topic[RenderSignal]
}

// New creates an empty bus
func New() *Bus {
	return &Bus{}
}

// Topic is a typed observer list. Handlers run synchronously on the
// publishing goroutine, in subscription order.
type Topic[T any] struct {
	mu       sync.RWMutex
	handlers []*handler[T]
}

type handler[T any] struct {
	fn func(T)
}

// Subscribe registers fn and returns a func that removes it. The returned
// func is safe to call more than once.
func (t *Topic[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	h := &handler[T]{fn: fn}

	t.mu.Lock()
	t.handlers = append(t.handlers, h)
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, other := range t.handlers {
				if other == h {
					t.handlers = append(t.handlers[:i:i], t.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers v to every current subscriber. Handlers may subscribe
// or unsubscribe while being called; changes apply from the next Publish.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	handlers := t.handlers
	t.mu.RUnlock()

	for _, h := range handlers {
		h.fn(v)
	}
}

// Len returns the number of subscribers
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}

// Recorder collects everything published on a topic. Useful in tests.
type Recorder[T any] struct {
	mu     sync.Mutex
	events []T
}

// Record subscribes a new Recorder to t
func Record[T any](t *Topic[T]) (*Recorder[T], func()) {
	r := &Recorder[T]{}
	unsubscribe := t.Subscribe(func(v T) {
		r.mu.Lock()
		r.events = append(r.events, v)
		r.mu.Unlock()
	})
	return r, unsubscribe
}

// Events returns a copy of the recorded values
func (r *Recorder[T]) Events() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.events...)
}

// Count returns how many values were recorded
func (r *Recorder[T]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reset forgets recorded values
func (r *Recorder[T]) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
