package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/livetemplate/sandbox/internal/bus"
	"github.com/livetemplate/sandbox/internal/demo"
)

// ClearBoxes removes every box
func (s *Store) ClearBoxes() {
	s.Dispatch(ClearBoxes{})
}

// UpdateCode sets the code of one box
func (s *Store) UpdateCode(t demo.BoxType, code string) {
	s.Dispatch(UpdateCode{Type: t, Code: code})
}

// UpdateTransformer sets the transformer of one box
func (s *Store) UpdateTransformer(t demo.BoxType, transformer string) {
	s.Dispatch(UpdateTransformer{Type: t, Transformer: transformer})
}

// UpdateFoldBoxes replaces the folded set
func (s *Store) UpdateFoldBoxes(boxes []demo.BoxType) {
	s.Dispatch(UpdateFoldBoxes{Boxes: boxes})
}

// UpdateVisibleBoxes replaces the visible list
func (s *Store) UpdateVisibleBoxes(boxes []demo.BoxType) {
	s.Dispatch(UpdateVisibleBoxes{Boxes: boxes})
}

// ToggleBoxFold folds or unfolds one box
func (s *Store) ToggleBoxFold(t demo.BoxType) {
	s.Dispatch(ToggleBoxFold{Type: t})
}

// ToggleAutoRun flips autoRun
func (s *Store) ToggleAutoRun() {
	s.Dispatch(ToggleAutoRun{})
}

// UpdateDependencies replaces the dependency lists
func (s *Store) UpdateDependencies(deps *Dependencies) {
	s.Dispatch(UpdateDependencies{Deps: deps})
}

// SetIframeStatus records the preview frame status
func (s *Store) SetIframeStatus(status string) {
	s.Dispatch(SetIframeStatus{Status: status})
}

// Transform flags a transform as running or finished
func (s *Store) Transform(transforming bool) {
	s.Dispatch(SetTransforming{Transforming: transforming})
}

// ClearLogs empties the log
func (s *Store) ClearLogs() {
	s.Dispatch(ClearLogs{})
}

// AddLog appends entry, filling in a missing id or timestamp
func (s *Store) AddLog(entry LogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	if entry.Level == "" {
		entry.Level = LevelLog
	}
	s.Dispatch(AddLog{Entry: entry})
}

// Run asks the preview to re-render regardless of autoRun
func (s *Store) Run() {
	s.bus.Render.Publish(bus.RenderSignal{})
}

// LoadDemo requests a demo load through the bus
func (s *Store) LoadDemo(ref demo.Ref) {
	s.bus.LoadDemo.Publish(ref)
}
