// Package server exposes the sandbox over HTTP: the sandbox page, the
// preview document, a small JSON API and the websocket that carries client
// actions in and state out.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/livetemplate/sandbox/internal/assets"
	"github.com/livetemplate/sandbox/internal/bus"
	"github.com/livetemplate/sandbox/internal/config"
	"github.com/livetemplate/sandbox/internal/demo"
	"github.com/livetemplate/sandbox/internal/preview"
	"github.com/livetemplate/sandbox/internal/registry"
	"github.com/livetemplate/sandbox/internal/store"
)

// shutdownTimeout bounds graceful shutdown in ListenAndServe
const shutdownTimeout = 5 * time.Second

// Server is the sandbox development server.
type Server struct {
	config   *config.Config
	store    *store.Store
	registry *registry.Registry
	bus      *bus.Bus
	relay    *preview.Relay
	hub      *Hub
	shell    *template.Template
	debug    bool

	ctx     context.Context
	cancel  context.CancelFunc
	unwatch []func()

	handlerOnce sync.Once
	handler     http.Handler

	mu      sync.Mutex
	watcher *Watcher
	demoDir string
}

// Option configures a Server
type Option func(*Server)

// WithHub makes the server use h for its websocket clients. Pass the same
// hub to the store as its Progress and Router so clients see load progress
// and not-found navigation.
func WithHub(h *Hub) Option {
	return func(s *Server) {
		s.hub = h
	}
}

// New creates a server. State snapshots and preview renders are pushed to
// websocket clients for as long as the server is open.
func New(cfg *config.Config, st *store.Store, reg *registry.Registry, b *bus.Bus, relay *preview.Relay, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   cfg,
		store:    st,
		registry: reg,
		bus:      b,
		relay:    relay,
		shell:    template.Must(template.New("shell").Parse(mustAsset(assets.GetShellTemplate))),
		debug:    cfg.Debug,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = NewHub(s.debug)
	}

	s.unwatch = append(s.unwatch, st.Watch(func(state store.State) {
		s.hub.Broadcast(TypeState, state)
	}))
	if relay != nil {
		s.unwatch = append(s.unwatch, relay.OnRender(func(f preview.Frame) {
			s.hub.Broadcast(TypeRender, renderPayload{Revision: f.Revision})
		}))
	}
	return s
}

func mustAsset(get func() ([]byte, error)) string {
	data, err := get()
	if err != nil {
		panic(fmt.Sprintf("missing embedded asset: %v", err))
	}
	return string(data)
}

// Hub returns the websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler with middleware applied
func (s *Server) Handler() http.Handler {
	s.handlerOnce.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /ws", s.serveWebSocket)
		mux.HandleFunc("GET /preview", s.servePreview)
		mux.HandleFunc("GET /assets/{file}", s.serveAsset)
		mux.HandleFunc("GET /api/demos", s.serveDemoList)
		mux.HandleFunc("GET /api/demos/{name}", s.serveDemo)
		mux.HandleFunc("GET /api/state", s.serveState)
		mux.HandleFunc("GET "+NotFoundPath, s.serveNotFound)
		mux.HandleFunc("GET /", s.serveRoot)

		rateLimit, _ := RateLimitMiddleware(s.ctx,
			s.config.Server.GetRateLimitRPS(), s.config.Server.GetRateLimitBurst(), 0)

		s.handler = SecurityHeadersMiddleware()(rateLimit(WithCompression(mux)))
	})
	return s.handler
}

// ListenAndServe serves on the configured address until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Server.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Printf("[Server] Shutting down")
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close stops the watcher, disconnects clients and stops pushing updates
func (s *Server) Close() error {
	s.cancel()
	for _, unwatch := range s.unwatch {
		unwatch()
	}
	s.unwatch = nil
	s.hub.Close()
	return s.StopWatcher()
}

type shellData struct {
	Title    string
	Demo     string
	NotFound bool
	Links    []config.Link
}

func (s *Server) renderShell(w http.ResponseWriter, status int, name string, notFound bool) {
	data := shellData{
		Title:    s.config.Title,
		Demo:     name,
		NotFound: notFound,
		Links:    s.links(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.shell.Execute(w, data); err != nil {
		log.Printf("[Server] Failed to render page: %v", err)
	}
}

func (s *Server) links() []config.Link {
	if s.registry == nil {
		return s.store.Snapshot().Links
	}
	return s.registry.Links()
}

// serveRoot shows the sandbox page for /<demo>. The client asks for the
// demo to be loaded once its websocket is up. "/" shows the first demo.
func (s *Server) serveRoot(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(r.URL.Path, "/")
	if name == "" {
		if links := s.links(); len(links) > 0 {
			name = links[0].Name
		}
		s.renderShell(w, http.StatusOK, name, false)
		return
	}

	if strings.Contains(name, "/") || (s.registry != nil && !s.registry.Has(name)) {
		s.renderShell(w, http.StatusNotFound, "", true)
		return
	}
	s.renderShell(w, http.StatusOK, name, false)
}

func (s *Server) serveNotFound(w http.ResponseWriter, r *http.Request) {
	s.renderShell(w, http.StatusNotFound, "", true)
}

// servePreview serves the current preview document
func (s *Server) servePreview(w http.ResponseWriter, r *http.Request) {
	var doc string
	if s.relay != nil {
		doc = s.relay.Document()
	} else {
		doc = preview.Build(s.store.Snapshot())
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Security-Policy", previewCSP)
	w.Write([]byte(doc))
}

func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	var (
		data        []byte
		err         error
		contentType string
	)
	switch r.PathValue("file") {
	case "sandbox.js":
		data, err = assets.GetClientJS()
		contentType = "application/javascript"
	case "sandbox.css":
		data, err = assets.GetClientCSS()
		contentType = "text/css"
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "Asset not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) serveDemoList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"demos":   s.links(),
		"current": s.store.Current(),
	})
}

// serveDemo returns a demo definition in document form
func (s *Server) serveDemo(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeJSONError(w, http.StatusNotFound, "no demo registry")
		return
	}
	name := r.PathValue("name")
	def, err := s.registry.Resolve(r.Context(), demo.Named(name))
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, registry.ErrDemoNotFound) {
			status = http.StatusNotFound
		}
		writeJSONError(w, status, registry.UserFriendlyMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) serveState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

// StartWatcher watches dir for demo changes. A changed demo is dropped from
// the registry cache and, when it is the demo on screen, loaded again.
// New demos found in dir are registered.
func (s *Server) StartWatcher(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return errors.New("watcher already running")
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	w, err := NewWatcher(absDir, s.reloadChanged, s.debug)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	s.watcher = w
	s.demoDir = absDir
	w.Start()

	log.Printf("[Watch] File watcher started for %s", absDir)
	return nil
}

// StopWatcher stops the file watcher if it's running.
func (s *Server) StopWatcher() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Stop()
}

// reloadChanged handles one batch of changed files
func (s *Server) reloadChanged(paths []string) {
	if s.registry == nil {
		return
	}

	changed := make(map[string]bool)
	unknown := false
	for _, p := range paths {
		if name, ok := s.registry.NameForPath(p); ok {
			changed[name] = true
		} else {
			unknown = true
		}
	}

	if unknown {
		s.mu.Lock()
		dir := s.demoDir
		s.mu.Unlock()
		if _, err := s.registry.AddScanned(dir); err != nil {
			log.Printf("[Watch] Rescan failed: %v", err)
		}
	}

	current := s.store.Current()
	for name := range changed {
		s.registry.Invalidate(name)
		log.Printf("[Watch] Demo changed: %s", name)
		if name == current {
			s.bus.LoadDemo.Publish(demo.Named(name))
		}
	}
	if len(changed) > 0 && s.debug {
		names := make([]string, 0, len(changed))
		for name := range changed {
			names = append(names, name)
		}
		log.Printf("[Watch] Reloaded: %s", strings.Join(names, ", "))
	}
}
