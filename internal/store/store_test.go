package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/sandbox/internal/bus"
	"github.com/livetemplate/sandbox/internal/config"
	"github.com/livetemplate/sandbox/internal/demo"
	"github.com/livetemplate/sandbox/internal/registry"
)

type progressRecorder struct {
	starts atomic.Int32
	dones  atomic.Int32
}

func (p *progressRecorder) Start() { p.starts.Add(1) }
func (p *progressRecorder) Done()  { p.dones.Add(1) }

type fixture struct {
	store    *Store
	registry *registry.Registry
	bus      *bus.Bus
	progress *progressRecorder
	notFound *atomic.Int32
	renders  *bus.Recorder[bus.RenderSignal]
}

func newFixture(t *testing.T, cfg *config.Config, opts ...Option) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	reg := registry.New()
	t.Cleanup(func() { reg.Close() })

	f := &fixture{
		registry: reg,
		bus:      bus.New(),
		progress: &progressRecorder{},
		notFound: &atomic.Int32{},
	}
	f.renders, _ = bus.Record(&f.bus.Render)

	opts = append([]Option{
		WithProgress(f.progress),
		WithRouter(RouterFunc(func() { f.notFound.Add(1) })),
	}, opts...)
	f.store = New(cfg, reg, f.bus, opts...)
	return f
}

func (f *fixture) register(t *testing.T, name, doc string) {
	t.Helper()
	def, err := demo.ParseJSON([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, f.registry.Register(name, def))
}

func (f *fixture) load(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, f.store.SetBoxes(context.Background(), demo.Named(name)))
}

func TestScenarioHelloDemo(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.GlobalPackages.JS = []string{"jquery"}
	f := newFixture(t, cfg)
	f.register(t, "hello", `{"js": {"code": "console.log(1)"}, "html": {"code": "<div/>"}, "packages": {"js": ["lodash"]}}`)

	f.load(t, "hello")

	s := f.store.Snapshot()
	assert.Equal(t, map[demo.BoxType]demo.Box{
		"js":   {Code: "console.log(1)"},
		"html": {Code: "<div/>"},
	}, s.Boxes)
	assert.Equal(t, []demo.BoxType{"js", "html"}, s.VisibleBoxes)
	assert.Equal(t, []demo.BoxType{}, s.FoldBoxes)
	assert.Equal(t, []string{"jquery", "lodash"}, s.Dependencies.JS)
	assert.Equal(t, []string{}, s.Dependencies.CSS)
	assert.Equal(t, "hello", s.Demo)
	assert.Equal(t, "hello", f.store.Current())

	assert.Equal(t, int32(1), f.progress.starts.Load())
	assert.Equal(t, int32(1), f.progress.dones.Load())
}

func TestNotFoundLeavesStateAlone(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "hello", `{"js": {"code": "1"}, "foldBoxes": ["js"], "packages": {"css": ["a.css"]}}`)
	f.load(t, "hello")
	before := f.store.Snapshot()

	for _, name := range []string{"missing", ""} {
		err := f.store.SetBoxes(context.Background(), demo.Named(name))
		assert.NoError(t, err, "not-found is handled by navigation")
	}

	after := f.store.Snapshot()
	assert.Equal(t, before.Boxes, after.Boxes)
	assert.Equal(t, before.FoldBoxes, after.FoldBoxes)
	assert.Equal(t, before.VisibleBoxes, after.VisibleBoxes)
	assert.Equal(t, before.Dependencies, after.Dependencies)
	assert.Equal(t, before.Revision, after.Revision, "nothing was committed")

	assert.Equal(t, int32(2), f.notFound.Load())
	assert.Equal(t, int32(3), f.progress.starts.Load())
	assert.Equal(t, int32(3), f.progress.dones.Load())
}

func TestLoadReplacesAllBoxes(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "first", `{"js": {"code": "1", "transformer": "babel"}, "css": {"code": "2"}}`)
	f.register(t, "second", `{"html": {"code": "3"}}`)

	f.load(t, "first")
	f.load(t, "second")

	s := f.store.Snapshot()
	assert.Equal(t, map[demo.BoxType]demo.Box{"html": {Code: "3"}}, s.Boxes)
	assert.Equal(t, []demo.BoxType{"html"}, s.BoxOrder)
}

func TestVisibleBoxesDefaultAndExplicit(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "default", `{"css": {"code": ""}, "js": {"code": ""}, "html": {"code": ""}}`)
	f.register(t, "explicit", `{"css": {"code": ""}, "js": {"code": ""}, "visibleBoxes": ["js"]}`)
	f.register(t, "empty", `{"css": {"code": ""}, "visibleBoxes": []}`)

	f.load(t, "default")
	assert.Equal(t, []demo.BoxType{"css", "js", "html"}, f.store.Snapshot().VisibleBoxes)

	f.load(t, "explicit")
	assert.Equal(t, []demo.BoxType{"js"}, f.store.Snapshot().VisibleBoxes)

	f.load(t, "empty")
	assert.Equal(t, []demo.BoxType{}, f.store.Snapshot().VisibleBoxes)
}

func TestDependencyOrderKeepsDuplicates(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.GlobalPackages = config.Packages{JS: []string{"jquery"}, CSS: []string{"base.css"}}
	f := newFixture(t, cfg)
	f.register(t, "d", `{"js": {"code": ""}, "packages": {"js": ["jquery", "lodash"], "css": ["base.css"]}}`)

	f.load(t, "d")

	deps := f.store.Snapshot().Dependencies
	assert.Equal(t, []string{"jquery", "jquery", "lodash"}, deps.JS)
	assert.Equal(t, []string{"base.css", "base.css"}, deps.CSS)
}

func TestFoldToggleThroughStore(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "d", `{"js": {"code": ""}, "css": {"code": ""}, "foldBoxes": ["css"]}`)
	f.load(t, "d")
	before := f.store.Snapshot()

	f.store.ToggleBoxFold("js")
	assert.Equal(t, []demo.BoxType{"css", "js"}, f.store.Snapshot().FoldBoxes)
	f.store.ToggleBoxFold("js")

	after := f.store.Snapshot()
	assert.Equal(t, before.FoldBoxes, after.FoldBoxes)
	assert.Equal(t, before.VisibleBoxes, after.VisibleBoxes)
}

func TestAutoRunGatesRenderSignals(t *testing.T) {
	doc := `{"js": {"code": ""}, "css": {"code": ""}, "html": {"code": ""}}`

	t.Run("on", func(t *testing.T) {
		f := newFixture(t, nil)
		f.register(t, "d", doc)
		f.load(t, "d")
		assert.Equal(t, 3, f.renders.Count())
	})

	t.Run("off", func(t *testing.T) {
		off := false
		cfg := config.DefaultConfig()
		cfg.AutoRun = &off
		f := newFixture(t, cfg)
		f.register(t, "d", doc)
		f.load(t, "d")
		assert.Equal(t, 0, f.renders.Count())

		f.store.ToggleAutoRun()
		f.store.UpdateCode("js", "1")
		assert.Equal(t, 1, f.renders.Count())
	})
}

func TestRunAlwaysRenders(t *testing.T) {
	off := false
	cfg := config.DefaultConfig()
	cfg.AutoRun = &off
	f := newFixture(t, cfg)

	f.store.Run()
	assert.Equal(t, 1, f.renders.Count())
}

func TestFactoryFailureKeepsState(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "good", `{"js": {"code": "ok"}, "packages": {"js": ["a"]}}`)
	boom := errors.New("factory exploded")
	f.registry.RegisterFunc("bad", func(ctx context.Context) (*demo.Definition, error) {
		return nil, boom
	})

	f.load(t, "good")
	before := f.store.Snapshot()

	err := f.store.SetBoxes(context.Background(), demo.Named("bad"))
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "bad", loadErr.Demo)
	assert.ErrorIs(t, err, boom)

	after := f.store.Snapshot()
	assert.Equal(t, before.Boxes, after.Boxes)
	assert.Equal(t, before.Dependencies, after.Dependencies)
	assert.Equal(t, "good", after.Demo)

	require.Len(t, after.Logs, 1)
	assert.Equal(t, LevelError, after.Logs[0].Level)
	assert.Equal(t, "bad", after.Logs[0].Source)
	assert.NotEmpty(t, after.Logs[0].ID)

	assert.Equal(t, f.progress.starts.Load(), f.progress.dones.Load())
	assert.Zero(t, f.notFound.Load())
}

func TestMalformedDirectDefinitionKeepsState(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "good", `{"js": {"code": "ok"}}`)
	f.load(t, "good")

	bad := &demo.Definition{Boxes: []demo.BoxEntry{{Type: "js"}, {Type: "js"}}}
	err := f.store.SetBoxes(context.Background(), demo.Direct(bad))

	var shapeErr *demo.ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "ok", f.store.Snapshot().Boxes["js"].Code)
	assert.Contains(t, f.store.Snapshot().Logs[0].Message, "Malformed demo")
}

func TestDirectDefinitionLoads(t *testing.T) {
	f := newFixture(t, nil)
	def := &demo.Definition{Boxes: []demo.BoxEntry{{Type: "md", Box: demo.Box{Code: "# hi", Transformer: "markdown"}}}}

	require.NoError(t, f.store.SetBoxes(context.Background(), demo.Direct(def)))

	s := f.store.Snapshot()
	assert.Equal(t, demo.Box{Code: "# hi", Transformer: "markdown"}, s.Boxes["md"])
	assert.Equal(t, "<inline>", s.Demo)
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "d", `{"js": {"code": ""}}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.store.SetBoxes(ctx, demo.Named("d"))

	assert.ErrorIs(t, err, context.Canceled)
	s := f.store.Snapshot()
	assert.Empty(t, s.Boxes)
	assert.Empty(t, s.Logs, "cancellation is not reported in the sandbox log")
	assert.Equal(t, int32(1), f.progress.dones.Load())
}

func TestResolveTimeout(t *testing.T) {
	f := newFixture(t, nil, WithResolveTimeout(20*time.Millisecond))
	f.registry.RegisterFunc("slow", func(ctx context.Context) (*demo.Definition, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	err := f.store.SetBoxes(context.Background(), demo.Named("slow"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	logs := f.store.Snapshot().Logs
	require.Len(t, logs, 1)
	assert.Equal(t, "Loading the demo timed out.", logs[0].Message)
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	f := newFixture(t, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	f.registry.RegisterFunc("slow", func(ctx context.Context) (*demo.Definition, error) {
		close(started)
		<-release
		return demo.ParseJSON([]byte(`{"js": {"code": "slow"}}`))
	})
	f.register(t, "fast", `{"html": {"code": "fast"}}`)

	var slowErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		slowErr = f.store.SetBoxes(context.Background(), demo.Named("slow"))
	}()

	<-started
	f.load(t, "fast")
	close(release)
	<-done

	assert.NoError(t, slowErr)
	s := f.store.Snapshot()
	assert.Equal(t, map[demo.BoxType]demo.Box{"html": {Code: "fast"}}, s.Boxes)
	assert.Equal(t, "fast", s.Demo)
	assert.Equal(t, uint64(2), f.store.Generation())
	assert.Equal(t, int32(2), f.progress.dones.Load())
}

func TestStaleFailureIsDiscarded(t *testing.T) {
	f := newFixture(t, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	f.registry.RegisterFunc("doomed", func(ctx context.Context) (*demo.Definition, error) {
		close(started)
		<-release
		return nil, errors.New("too late to matter")
	})
	f.register(t, "fast", `{"html": {"code": "fast"}}`)

	errc := make(chan error, 1)
	go func() { errc <- f.store.SetBoxes(context.Background(), demo.Named("doomed")) }()

	<-started
	f.load(t, "fast")
	close(release)

	assert.NoError(t, <-errc)
	assert.Empty(t, f.store.Snapshot().Logs)
}

func TestWatchersNeverSeePartialLoads(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.GlobalPackages.JS = []string{"g"}
	f := newFixture(t, cfg)
	f.register(t, "d", `{"a": {"code": "1"}, "b": {"code": "2"}, "c": {"code": "3"}, "foldBoxes": ["b"]}`)

	var mu sync.Mutex
	var seen []State
	cancel := f.store.Watch(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	defer cancel()

	f.load(t, "d")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1, "clear and batch commit together")
	assert.Len(t, seen[0].Boxes, 3)
	assert.Equal(t, []demo.BoxType{"b"}, seen[0].FoldBoxes)
	assert.Equal(t, []string{"g"}, seen[0].Dependencies.JS)
	assert.Equal(t, "d", seen[0].Demo)
}

func TestLoadStartedFromWatcherCannotSplitALoad(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "a", `{"html": {"code": "a"}, "css": {"code": "a"}}`)
	f.register(t, "b", `{"js": {"code": "b"}, "visibleBoxes": ["js"]}`)
	f.load(t, "a")

	var mu sync.Mutex
	var seen []State
	var once sync.Once
	cancel := f.store.Watch(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
		once.Do(func() {
			assert.NoError(t, f.store.SetBoxes(context.Background(), demo.Named("missing")))
		})
	})
	defer cancel()

	f.load(t, "b")

	s := f.store.Snapshot()
	assert.Equal(t, "b", s.Demo)
	assert.Equal(t, map[demo.BoxType]demo.Box{"js": {Code: "b"}}, s.Boxes)
	assert.Equal(t, []demo.BoxType{"js"}, s.VisibleBoxes)
	assert.Equal(t, int32(1), f.notFound.Load())

	mu.Lock()
	defer mu.Unlock()
	for _, snap := range seen {
		assert.NotEmpty(t, snap.Boxes, "watcher saw a cleared state")
		assert.Equal(t, "b", snap.Demo)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	f := newFixture(t, nil)
	f.store.UpdateCode("js", "1")

	s := f.store.Snapshot()
	s.Boxes["js"] = demo.Box{Code: "hacked"}
	s.BoxOrder[0] = "css"
	s.Logs = append(s.Logs, LogEntry{})

	fresh := f.store.Snapshot()
	assert.Equal(t, "1", fresh.Boxes["js"].Code)
	assert.Equal(t, []demo.BoxType{"js"}, fresh.BoxOrder)
	assert.Empty(t, fresh.Logs)
}

func TestActions(t *testing.T) {
	f := newFixture(t, nil)

	f.store.UpdateCode("js", "x")
	f.store.UpdateTransformer("js", "babel")
	f.store.UpdateFoldBoxes([]demo.BoxType{"js", "js"})
	f.store.UpdateVisibleBoxes([]demo.BoxType{"js"})
	f.store.SetIframeStatus("ready")
	f.store.Transform(true)
	f.store.UpdateDependencies(nil)
	f.store.AddLog(LogEntry{Message: "hello"})

	s := f.store.Snapshot()
	assert.Equal(t, demo.Box{Code: "x", Transformer: "babel"}, s.Boxes["js"])
	assert.Equal(t, []demo.BoxType{"js"}, s.FoldBoxes)
	assert.Equal(t, []demo.BoxType{"js"}, s.VisibleBoxes)
	assert.Equal(t, "ready", s.IframeStatus)
	assert.True(t, s.Transforming)
	assert.Equal(t, Dependencies{JS: []string{}, CSS: []string{}}, s.Dependencies)
	require.Len(t, s.Logs, 1)
	assert.Equal(t, LevelLog, s.Logs[0].Level)
	assert.NotEmpty(t, s.Logs[0].ID)
	assert.False(t, s.Logs[0].Time.IsZero())

	f.store.ClearLogs()
	f.store.ClearBoxes()
	s = f.store.Snapshot()
	assert.Empty(t, s.Logs)
	assert.Empty(t, s.Boxes)
}

func TestAttachRunsLoadsFromBus(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "hello", `{"js": {"code": "from bus"}}`)

	detach := f.store.Attach(context.Background())
	f.store.LoadDemo(demo.Named("hello"))
	f.store.Wait()

	assert.Equal(t, "from bus", f.store.Snapshot().Boxes["js"].Code)

	detach()
	f.bus.LoadDemo.Publish(demo.Named("missing"))
	f.store.Wait()
	assert.Zero(t, f.notFound.Load(), "detached store ignores the bus")
}

func TestAttachLastPublishedLoadWins(t *testing.T) {
	f := newFixture(t, nil)
	names := []string{"d0", "d1", "d2", "d3"}
	for _, name := range names {
		f.register(t, name, `{"js": {"code": "`+name+`"}}`)
	}

	detach := f.store.Attach(context.Background())
	defer detach()

	for i := 0; i < 50; i++ {
		for _, name := range names {
			f.store.LoadDemo(demo.Named(name))
		}
		f.store.Wait()

		s := f.store.Snapshot()
		require.Equal(t, "d3", s.Demo, "round %d", i)
		require.Equal(t, "d3", s.Boxes["js"].Code, "round %d", i)
	}
}

func TestInitialState(t *testing.T) {
	reg := registry.New()
	defer reg.Close()
	require.NoError(t, reg.Register("b", &demo.Definition{}))
	require.NoError(t, reg.Register("a", &demo.Definition{}))

	s := New(nil, reg, nil).Snapshot()
	assert.True(t, s.AutoRun)
	assert.Empty(t, s.Boxes)
	assert.NotNil(t, s.FoldBoxes)
	assert.NotNil(t, s.Logs)
	assert.Equal(t, "", s.IframeStatus)
	assert.False(t, s.Transforming)
	require.Len(t, s.Links, 2)
	assert.Equal(t, "a", s.Links[0].Name)
	assert.NotNil(t, s.Config)
}
