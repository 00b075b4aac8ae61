// Package store owns the sandbox application state. All changes go through
// Mutations applied by a single writer; readers get deep copies.
package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/livetemplate/sandbox/internal/config"
	"github.com/livetemplate/sandbox/internal/demo"
)

// LogLevel classifies a sandbox log entry
type LogLevel string

const (
	LevelLog   LogLevel = "log"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is one line of the sandbox console
type LogEntry struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
	Source  string    `json:"source,omitempty"`
}

// NewLogEntry stamps a log entry with a fresh id and the current time
func NewLogEntry(level LogLevel, source, message string) LogEntry {
	return LogEntry{
		ID:      uuid.New().String(),
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Source:  source,
	}
}

// Dependencies are the external script and stylesheet URLs of the preview
type Dependencies struct {
	JS  []string `json:"js"`
	CSS []string `json:"css"`
}

// State is the sandbox application state.
type State struct {
	Config *config.Config `json:"-"`

	// Demo is the identifier of the last demo that finished loading
	Demo string `json:"demo"`

	Boxes        map[demo.BoxType]demo.Box `json:"boxes"`
	BoxOrder     []demo.BoxType            `json:"boxOrder"`
	FoldBoxes    []demo.BoxType            `json:"foldBoxes"`
	VisibleBoxes []demo.BoxType            `json:"visibleBoxes"`
	Links        []config.Link             `json:"links"`
	IframeStatus string                    `json:"iframeStatus"`
	Transforming bool                      `json:"transforming"`
	AutoRun      bool                      `json:"autoRun"`
	Logs         []LogEntry                `json:"logs"`
	Dependencies Dependencies              `json:"dependencies"`

	// Revision increases with every committed change
	Revision uint64 `json:"revision"`
}

// NewState returns the initial state for cfg
func NewState(cfg *config.Config, links []config.Link) State {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return State{
		Config:       cfg,
		Boxes:        make(map[demo.BoxType]demo.Box),
		BoxOrder:     []demo.BoxType{},
		FoldBoxes:    []demo.BoxType{},
		VisibleBoxes: []demo.BoxType{},
		Links:        cloneSlice(links),
		AutoRun:      cfg.IsAutoRun(),
		Logs:         []LogEntry{},
		Dependencies: Dependencies{JS: []string{}, CSS: []string{}},
	}
}

// Clone returns a deep copy. Config is shared: it is never mutated.
func (s State) Clone() State {
	out := s
	out.Boxes = make(map[demo.BoxType]demo.Box, len(s.Boxes))
	for t, b := range s.Boxes {
		out.Boxes[t] = b
	}
	out.BoxOrder = cloneSlice(s.BoxOrder)
	out.FoldBoxes = cloneSlice(s.FoldBoxes)
	out.VisibleBoxes = cloneSlice(s.VisibleBoxes)
	out.Links = cloneSlice(s.Links)
	out.Logs = cloneSlice(s.Logs)
	out.Dependencies = Dependencies{
		JS:  cloneSlice(s.Dependencies.JS),
		CSS: cloneSlice(s.Dependencies.CSS),
	}
	return out
}

// OrderedBoxes returns the boxes in the order they were added
func (s State) OrderedBoxes() []demo.BoxEntry {
	entries := make([]demo.BoxEntry, 0, len(s.BoxOrder))
	for _, t := range s.BoxOrder {
		entries = append(entries, demo.BoxEntry{Type: t, Box: s.Boxes[t]})
	}
	return entries
}

// cloneSlice copies in, turning nil into an empty slice
func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func indexOf(list []demo.BoxType, t demo.BoxType) int {
	for i, v := range list {
		if v == t {
			return i
		}
	}
	return -1
}
