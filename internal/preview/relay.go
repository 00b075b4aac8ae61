package preview

import (
	"log"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/livetemplate/sandbox/internal/bus"
	"github.com/livetemplate/sandbox/internal/store"
)

// Source provides the state a render reads. *store.Store implements it.
type Source interface {
	Snapshot() store.State
}

// Frame is one rendered preview document
type Frame struct {
	Revision uint64 // Number of renders so far, starting at 1
	State    uint64 // Store revision the document was built from
	Document string
}

// Relay re-renders the preview document whenever a render signal arrives.
// Bursts of signals within the debounce window collapse into one render.
type Relay struct {
	source Source
	unsub  func()
	delay  func(f func())
	debug  bool

	mu     sync.RWMutex
	frame  Frame
	closed bool

	frames bus.Topic[Frame]
}

// NewRelay subscribes to b.Render. A debounce of zero renders on every
// signal, synchronously on the publishing goroutine. debug logs each render.
func NewRelay(source Source, b *bus.Bus, wait time.Duration, debug bool) *Relay {
	r := &Relay{source: source, debug: debug}
	if wait > 0 {
		r.delay = debounce.New(wait)
	}
	r.unsub = b.Render.Subscribe(func(bus.RenderSignal) {
		if r.delay == nil {
			r.render()
			return
		}
		r.delay(r.render)
	})
	return r
}

// OnRender registers fn to receive every new frame. fn runs on the
// rendering goroutine.
func (r *Relay) OnRender(fn func(Frame)) (cancel func()) {
	return r.frames.Subscribe(fn)
}

// Document returns the latest document, rendering one first if no signal
// has arrived yet.
func (r *Relay) Document() string {
	r.mu.RLock()
	doc := r.frame.Document
	rendered := r.frame.Revision > 0
	r.mu.RUnlock()
	if rendered {
		return doc
	}
	return Build(r.source.Snapshot())
}

// Frame returns the latest rendered frame
func (r *Relay) Frame() Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frame
}

// Revision returns the number of renders performed
func (r *Relay) Revision() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frame.Revision
}

// Close stops listening for render signals. A render already scheduled by
// the debouncer is dropped.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.unsub()
}

func (r *Relay) render() {
	snap := r.source.Snapshot()
	doc := Build(snap)

	r.mu.Lock()
	if r.closed || snap.Revision < r.frame.State {
		r.mu.Unlock()
		return
	}
	r.frame = Frame{Revision: r.frame.Revision + 1, State: snap.Revision, Document: doc}
	frame := r.frame
	r.mu.Unlock()

	if r.debug {
		log.Printf("[Preview] Rendered revision %d (%d bytes)", frame.Revision, len(doc))
	}
	r.frames.Publish(frame)
}
