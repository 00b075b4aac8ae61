package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"

	"github.com/livetemplate/sandbox/internal/config"
	"github.com/livetemplate/sandbox/internal/demo"
)

var ignoreConfig = cmpopts.IgnoreFields(State{}, "Config")

func initial() State {
	return NewState(config.DefaultConfig(), nil)
}

func TestReduceDoesNotModifyInput(t *testing.T) {
	before := initial()
	before, _ = Reduce(before, UpdateCode{Type: "js", Code: "1"})
	saved := before.Clone()

	after, _ := Reduce(before, UpdateCode{Type: "js", Code: "2"})
	after, _ = Reduce(after, ToggleBoxFold{Type: "js"})
	after, _ = Reduce(after, AddLog{Entry: LogEntry{Message: "hi"}})

	if diff := cmp.Diff(saved, before, ignoreConfig); diff != "" {
		t.Errorf("input state changed (-want +got):\n%s", diff)
	}
	assert.Equal(t, "2", after.Boxes["js"].Code)
}

func TestReduce(t *testing.T) {
	withBoxes := func() State {
		s := initial()
		s, _ = Reduce(s, UpdateCode{Type: "js", Code: "a"})
		s, _ = Reduce(s, UpdateTransformer{Type: "js", Transformer: "babel"})
		s, _ = Reduce(s, UpdateCode{Type: "css", Code: "b"})
		return s
	}

	tests := []struct {
		name    string
		start   func() State
		m       Mutation
		want    func(s *State)
		effects []Effect
	}{
		{
			name:  "clear boxes",
			start: withBoxes,
			m:     ClearBoxes{},
			want: func(s *State) {
				s.Boxes = map[demo.BoxType]demo.Box{}
				s.BoxOrder = []demo.BoxType{}
			},
		},
		{
			name:  "update code creates box and renders",
			start: initial,
			m:     UpdateCode{Type: "html", Code: "<p/>"},
			want: func(s *State) {
				s.Boxes["html"] = demo.Box{Code: "<p/>"}
				s.BoxOrder = []demo.BoxType{"html"}
			},
			effects: []Effect{EffectRender},
		},
		{
			name: "update code without autoRun",
			start: func() State {
				s := initial()
				s.AutoRun = false
				return s
			},
			m: UpdateCode{Type: "html", Code: "<p/>"},
			want: func(s *State) {
				s.Boxes["html"] = demo.Box{Code: "<p/>"}
				s.BoxOrder = []demo.BoxType{"html"}
			},
		},
		{
			name:  "update code keeps transformer",
			start: withBoxes,
			m:     UpdateCode{Type: "js", Code: "z"},
			want: func(s *State) {
				s.Boxes["js"] = demo.Box{Code: "z", Transformer: "babel"}
			},
			effects: []Effect{EffectRender},
		},
		{
			name:  "update transformer creates box",
			start: initial,
			m:     UpdateTransformer{Type: "ts", Transformer: "typescript"},
			want: func(s *State) {
				s.Boxes["ts"] = demo.Box{Transformer: "typescript"}
				s.BoxOrder = []demo.BoxType{"ts"}
			},
		},
		{
			name:  "fold boxes dedupes",
			start: initial,
			m:     UpdateFoldBoxes{Boxes: []demo.BoxType{"js", "css", "js"}},
			want: func(s *State) {
				s.FoldBoxes = []demo.BoxType{"js", "css"}
			},
		},
		{
			name:  "nil fold boxes",
			start: initial,
			m:     UpdateFoldBoxes{},
			want:  func(s *State) {},
		},
		{
			name:  "visible boxes",
			start: initial,
			m:     UpdateVisibleBoxes{Boxes: []demo.BoxType{"css", "js"}},
			want: func(s *State) {
				s.VisibleBoxes = []demo.BoxType{"css", "js"}
			},
		},
		{
			name:  "toggle fold appends",
			start: initial,
			m:     ToggleBoxFold{Type: "js"},
			want: func(s *State) {
				s.FoldBoxes = []demo.BoxType{"js"}
			},
		},
		{
			name: "toggle fold removes",
			start: func() State {
				s := initial()
				s.FoldBoxes = []demo.BoxType{"css", "js", "html"}
				return s
			},
			m: ToggleBoxFold{Type: "js"},
			want: func(s *State) {
				s.FoldBoxes = []demo.BoxType{"css", "html"}
			},
		},
		{
			name:  "iframe status",
			start: initial,
			m:     SetIframeStatus{Status: "loaded"},
			want: func(s *State) {
				s.IframeStatus = "loaded"
			},
		},
		{
			name:  "transforming",
			start: initial,
			m:     SetTransforming{Transforming: true},
			want: func(s *State) {
				s.Transforming = true
			},
		},
		{
			name:  "toggle autoRun",
			start: initial,
			m:     ToggleAutoRun{},
			want: func(s *State) {
				s.AutoRun = false
			},
		},
		{
			name: "clear logs",
			start: func() State {
				s := initial()
				s.Logs = []LogEntry{{Message: "a"}, {Message: "b"}}
				return s
			},
			m:    ClearLogs{},
			want: func(s *State) { s.Logs = []LogEntry{} },
		},
		{
			name:  "add log",
			start: initial,
			m:     AddLog{Entry: LogEntry{ID: "1", Level: LevelWarn, Message: "careful"}},
			want: func(s *State) {
				s.Logs = []LogEntry{{ID: "1", Level: LevelWarn, Message: "careful"}}
			},
		},
		{
			name:  "dependencies",
			start: initial,
			m:     UpdateDependencies{Deps: &Dependencies{JS: []string{"a", "a"}}},
			want: func(s *State) {
				s.Dependencies = Dependencies{JS: []string{"a", "a"}, CSS: []string{}}
			},
		},
		{
			name: "nil dependencies reset",
			start: func() State {
				s := initial()
				s.Dependencies = Dependencies{JS: []string{"x"}, CSS: []string{"y"}}
				return s
			},
			m:    UpdateDependencies{},
			want: func(s *State) { s.Dependencies = Dependencies{JS: []string{}, CSS: []string{}} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := tt.start()
			want := start.Clone()
			tt.want(&want)

			got, effects := Reduce(start, tt.m)
			if diff := cmp.Diff(want, got, ignoreConfig); diff != "" {
				t.Errorf("%s (-want +got):\n%s", tt.m.Name(), diff)
			}
			assert.Equal(t, tt.effects, effects)
		})
	}
}

func TestToggleBoxFoldIsInvolutive(t *testing.T) {
	for _, start := range [][]demo.BoxType{{}, {"js"}, {"css", "html"}} {
		s := initial()
		s.FoldBoxes = start
		s.VisibleBoxes = []demo.BoxType{"js", "css"}

		once, _ := Reduce(s, ToggleBoxFold{Type: "html"})
		twice, _ := Reduce(once, ToggleBoxFold{Type: "html"})

		assert.ElementsMatch(t, s.FoldBoxes, twice.FoldBoxes)
		assert.Equal(t, s.VisibleBoxes, twice.VisibleBoxes)
		assert.Equal(t, s.VisibleBoxes, once.VisibleBoxes)
	}
}

func TestStateCloneIsDeep(t *testing.T) {
	s := initial()
	s, _ = Reduce(s, UpdateCode{Type: "js", Code: "1"})
	s.Dependencies.JS = append(s.Dependencies.JS, "x")

	c := s.Clone()
	c.Boxes["js"] = demo.Box{Code: "2"}
	c.Dependencies.JS[0] = "y"
	c.BoxOrder[0] = "css"

	assert.Equal(t, "1", s.Boxes["js"].Code)
	assert.Equal(t, "x", s.Dependencies.JS[0])
	assert.Equal(t, demo.BoxType("js"), s.BoxOrder[0])
	assert.Same(t, s.Config, c.Config)
}

func TestMergeDependencies(t *testing.T) {
	global := config.Packages{JS: []string{"jquery"}, CSS: []string{"reset.css"}}

	got := MergeDependencies(global, &demo.Packages{JS: []string{"jquery", "lodash"}})
	assert.Equal(t, []string{"jquery", "jquery", "lodash"}, got.JS)
	assert.Equal(t, []string{"reset.css"}, got.CSS)

	got = MergeDependencies(config.Packages{}, nil)
	assert.NotNil(t, got.JS)
	assert.NotNil(t, got.CSS)
	assert.Empty(t, got.JS)

	// The global slices are never aliased.
	got = MergeDependencies(global, &demo.Packages{JS: []string{"x"}})
	got.JS[0] = "changed"
	assert.Equal(t, "jquery", global.JS[0])
}
