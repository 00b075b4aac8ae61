// Package registry maps demo identifiers to the loaders that produce them.
// A registry is built once from the sandbox manifest and is read-only after
// that, apart from cache invalidation.
package registry

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"sync"

	"github.com/livetemplate/sandbox/internal/cache"
	"github.com/livetemplate/sandbox/internal/config"
	"github.com/livetemplate/sandbox/internal/demo"
)

// Loader produces one demo. Implementations may block (network, database)
// and must honour ctx.
type Loader interface {
	// Name returns the demo identifier
	Name() string

	// Load returns the demo definition. The caller owns the result.
	Load(ctx context.Context) (*demo.Definition, error)

	// Close releases any resources held by the loader
	Close() error
}

// Factory lazily produces a demo
type Factory func(ctx context.Context) (*demo.Definition, error)

// StaticLoader returns a fixed, already resolved definition
type StaticLoader struct {
	name string
	def  *demo.Definition
}

// NewStaticLoader creates a loader for a concrete definition
func NewStaticLoader(name string, def *demo.Definition) *StaticLoader {
	return &StaticLoader{name: name, def: def.Clone()}
}

func (l *StaticLoader) Name() string { return l.name }

func (l *StaticLoader) Load(ctx context.Context) (*demo.Definition, error) {
	return l.def.Clone(), nil
}

func (l *StaticLoader) Close() error { return nil }

// FuncLoader resolves a demo through a Factory on every load
type FuncLoader struct {
	name string
	fn   Factory
}

// NewFuncLoader creates a loader backed by fn
func NewFuncLoader(name string, fn Factory) *FuncLoader {
	return &FuncLoader{name: name, fn: fn}
}

func (l *FuncLoader) Name() string { return l.name }

func (l *FuncLoader) Load(ctx context.Context) (*demo.Definition, error) {
	return l.fn(ctx)
}

func (l *FuncLoader) Close() error { return nil }

// Registry holds the configured demos for a sandbox
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
	titles  map[string]string
	links   []config.Link
	closers []io.Closer

	cache *cache.MemoryCache
	debug bool
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		loaders: make(map[string]Loader),
		titles:  make(map[string]string),
		cache:   cache.NewMemoryCache(),
	}
}

// SetDebug enables verbose logging
func (r *Registry) SetDebug(debug bool) {
	r.debug = debug
}

// Register adds a concrete demo definition
func (r *Registry) Register(name string, def *demo.Definition) error {
	if name == "" {
		return &ValidationError{Demo: name, Field: "name", Reason: "name is required"}
	}
	if err := def.Validate(); err != nil {
		return NewLoadError(name, "validate", err)
	}
	r.RegisterLoader(name, NewStaticLoader(name, def))
	return nil
}

// RegisterFunc adds a demo resolved on demand by fn
func (r *Registry) RegisterFunc(name string, fn Factory) {
	r.RegisterLoader(name, NewFuncLoader(name, fn))
}

// RegisterLoader adds or replaces the loader for name
func (r *Registry) RegisterLoader(name string, l Loader) {
	r.mu.Lock()
	old, replaced := r.loaders[name]
	r.loaders[name] = l
	r.mu.Unlock()

	r.cache.Invalidate(name)
	if replaced && old != l {
		if err := old.Close(); err != nil {
			log.Printf("[Registry] Failed to close replaced loader %q: %v", name, err)
		}
	}
	if r.debug {
		log.Printf("[Registry] Registered %q", name)
	}
}

// SetTitle sets the display title used by Links
func (r *Registry) SetTitle(name, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles[name] = title
}

// SetLinks overrides the derived link list
func (r *Registry) SetLinks(links []config.Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links = append([]config.Link(nil), links...)
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.loaders[name]
	return ok
}

// Names returns the registered identifiers in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.loaders))
	for name := range r.loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Links returns display metadata: the configured links when present,
// otherwise one link per registered demo.
func (r *Registry) Links() []config.Link {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.links) > 0 {
		return append([]config.Link(nil), r.links...)
	}

	names := make([]string, 0, len(r.loaders))
	for name := range r.loaders {
		names = append(names, name)
	}
	sort.Strings(names)

	links := make([]config.Link, 0, len(names))
	for _, name := range names {
		title := r.titles[name]
		if title == "" {
			title = name
		}
		links = append(links, config.Link{Name: name, Title: title, Path: "/" + name})
	}
	return links
}

// Resolve turns a reference into a definition owned by the caller.
// Unknown names fail with a NotFoundError; every other failure is a
// LoadError or the loader's own typed error.
func (r *Registry) Resolve(ctx context.Context, ref demo.Ref) (*demo.Definition, error) {
	if ref.IsDirect() {
		if err := ref.Definition.Validate(); err != nil {
			return nil, NewLoadError(ref.String(), "validate", err)
		}
		return ref.Definition.Clone(), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	l, ok := r.loaders[ref.Name]
	r.mu.RUnlock()
	if ref.Name == "" || !ok {
		return nil, &NotFoundError{Name: ref.Name}
	}

	def, err := l.Load(ctx)
	if err != nil {
		return nil, classify(ref.Name, err)
	}
	if def == nil {
		return nil, &LoadError{Demo: ref.Name, Operation: "load", Err: errors.New("loader returned no demo")}
	}
	if err := def.Validate(); err != nil {
		return nil, NewLoadError(ref.Name, "validate", err)
	}
	return def, nil
}

// classify keeps typed loader errors and wraps everything else
func classify(name string, err error) error {
	if errors.Is(err, ErrDemoNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var loadErr *LoadError
	var httpErr *HTTPError
	var circuitErr *CircuitOpenError
	if errors.As(err, &loadErr) || errors.As(err, &httpErr) || errors.As(err, &circuitErr) {
		return err
	}
	return NewLoadError(name, "load", err)
}

// Invalidate drops any cached definition for name
func (r *Registry) Invalidate(name string) {
	r.cache.Invalidate(name)
	if r.debug {
		log.Printf("[Registry] Invalidated %q", name)
	}
}

// InvalidateAll drops every cached definition
func (r *Registry) InvalidateAll() {
	r.cache.InvalidateAll()
}

// Cache returns the registry's definition cache for loader wrappers
func (r *Registry) Cache() cache.Cache {
	return r.cache
}

func (r *Registry) addCloser(c io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, c)
}

// Close releases all loaders and stops the cache
func (r *Registry) Close() error {
	r.cache.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, l := range r.loaders {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.loaders = make(map[string]Loader)
	r.closers = nil
	return errors.Join(errs...)
}
