package store

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/livetemplate/sandbox/internal/bus"
	"github.com/livetemplate/sandbox/internal/config"
	"github.com/livetemplate/sandbox/internal/demo"
)

// Store is the single writer of the sandbox state.
type Store struct {
	mu         sync.Mutex
	state      State
	generation uint64

	cfg            *config.Config
	registry       Registry
	bus            *bus.Bus
	progress       Progress
	router         Router
	resolveTimeout time.Duration
	debug          bool

	changes bus.Topic[State]
	loads   sync.WaitGroup
}

// Option configures a Store
type Option func(*Store)

// WithProgress sets the progress indicator told about demo loads
func WithProgress(p Progress) Option {
	return func(s *Store) {
		s.progress = p
	}
}

// WithRouter sets the navigation sink used for unknown demos
func WithRouter(r Router) Option {
	return func(s *Store) {
		s.router = r
	}
}

// WithDebug enables verbose logging
func WithDebug(debug bool) Option {
	return func(s *Store) {
		s.debug = debug
	}
}

// WithResolveTimeout bounds each demo resolution. Zero means no bound.
func WithResolveTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.resolveTimeout = d
	}
}

// New creates a store with the initial state for cfg. A nil bus gets a
// private one.
func New(cfg *config.Config, reg Registry, b *bus.Bus, opts ...Option) *Store {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if b == nil {
		b = bus.New()
	}
	s := &Store{
		cfg:            cfg,
		registry:       reg,
		bus:            b,
		progress:       nopProgress{},
		router:         nopRouter{},
		resolveTimeout: cfg.GetResolveTimeout(),
		debug:          cfg.Debug,
	}
	for _, opt := range opts {
		opt(s)
	}

	var links []config.Link
	if reg != nil {
		links = reg.Links()
	}
	s.state = NewState(cfg, links)
	return s
}

// Bus returns the bus the store publishes on
func (s *Store) Bus() *bus.Bus {
	return s.bus
}

// Snapshot returns a deep copy of the current state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Generation returns the token of the most recently started demo load
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Current returns the identifier of the last demo that finished loading
func (s *Store) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Demo
}

// Watch calls fn with a copy of the state after every commit. fn runs on
// the committing goroutine and must not modify the state it receives.
func (s *Store) Watch(fn func(State)) (cancel func()) {
	return s.changes.Subscribe(fn)
}

// Dispatch applies mutations as one commit
func (s *Store) Dispatch(ms ...Mutation) {
	s.commit(0, ms...)
}

// commit applies ms under one lock. With a non-zero gen, nothing is applied
// unless gen is still the current load generation. Watchers and effects run
// after the lock is released.
func (s *Store) commit(gen uint64, ms ...Mutation) bool {
	if len(ms) == 0 {
		return true
	}

	s.mu.Lock()
	if gen != 0 && gen != s.generation {
		s.mu.Unlock()
		return false
	}
	next := s.state.Clone()
	var effects []Effect
	for _, m := range ms {
		effects = append(effects, m.apply(&next)...)
		if s.debug {
			log.Printf("[Store] %s", m.Name())
		}
	}
	next.Revision++
	s.state = next
	snapshot := next.Clone()
	s.mu.Unlock()

	s.changes.Publish(snapshot)
	s.runEffects(effects)
	return true
}

func (s *Store) runEffects(effects []Effect) {
	for _, e := range effects {
		switch e {
		case EffectRender:
			s.bus.Render.Publish(bus.RenderSignal{})
		}
	}
}

// Attach subscribes the store to load requests on the bus. Each request
// takes its load generation when published, so the last request published
// wins, then runs on its own goroutine bound to ctx. The returned func stops
// listening; loads already running continue.
func (s *Store) Attach(ctx context.Context) (detach func()) {
	return s.bus.LoadDemo.Subscribe(func(ref demo.Ref) {
		gen := s.beginLoad()
		s.loads.Add(1)
		go func() {
			defer s.loads.Done()
			if err := s.setBoxes(ctx, gen, ref); err != nil {
				log.Printf("[Store] Load %s failed: %v", ref, err)
			}
		}()
	})
}

// Wait blocks until loads started through Attach have finished
func (s *Store) Wait() {
	s.loads.Wait()
}
