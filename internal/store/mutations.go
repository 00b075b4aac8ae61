package store

import (
	"github.com/livetemplate/sandbox/internal/demo"
)

// Effect is a side effect requested by a mutation. Effects run after the
// mutation is committed, outside the store lock.
type Effect int

const (
	// EffectRender publishes a render signal on the bus
	EffectRender Effect = iota + 1
)

// Mutation is a synchronous state transition. Mutations never fail.
type Mutation interface {
	// Name identifies the mutation in logs
	Name() string

	apply(s *State) []Effect
}

// Reduce applies m to a copy of s and returns the new state with the
// effects m requested. s is not modified.
func Reduce(s State, m Mutation) (State, []Effect) {
	next := s.Clone()
	effects := m.apply(&next)
	return next, effects
}

// ClearBoxes removes every box
type ClearBoxes struct{}

func (ClearBoxes) Name() string { return "ClearBoxes" }

func (ClearBoxes) apply(s *State) []Effect {
	s.Boxes = make(map[demo.BoxType]demo.Box)
	s.BoxOrder = []demo.BoxType{}
	return nil
}

// UpdateCode sets the code of a box, creating the box if needed.
// While autoRun is on it requests a render.
type UpdateCode struct {
	Type demo.BoxType
	Code string
}

func (UpdateCode) Name() string { return "UpdateCode" }

func (m UpdateCode) apply(s *State) []Effect {
	box := ensureBox(s, m.Type)
	box.Code = m.Code
	s.Boxes[m.Type] = box
	if s.AutoRun {
		return []Effect{EffectRender}
	}
	return nil
}

// UpdateTransformer sets the transformer of a box, creating the box if needed
type UpdateTransformer struct {
	Type        demo.BoxType
	Transformer string
}

func (UpdateTransformer) Name() string { return "UpdateTransformer" }

func (m UpdateTransformer) apply(s *State) []Effect {
	box := ensureBox(s, m.Type)
	box.Transformer = m.Transformer
	s.Boxes[m.Type] = box
	return nil
}

func ensureBox(s *State, t demo.BoxType) demo.Box {
	box, ok := s.Boxes[t]
	if !ok {
		s.BoxOrder = append(s.BoxOrder, t)
	}
	return box
}

// UpdateFoldBoxes replaces the folded set. Repeated types keep their first
// position.
type UpdateFoldBoxes struct {
	Boxes []demo.BoxType
}

func (UpdateFoldBoxes) Name() string { return "UpdateFoldBoxes" }

func (m UpdateFoldBoxes) apply(s *State) []Effect {
	fold := make([]demo.BoxType, 0, len(m.Boxes))
	for _, t := range m.Boxes {
		if indexOf(fold, t) < 0 {
			fold = append(fold, t)
		}
	}
	s.FoldBoxes = fold
	return nil
}

// UpdateVisibleBoxes replaces the visible list
type UpdateVisibleBoxes struct {
	Boxes []demo.BoxType
}

func (UpdateVisibleBoxes) Name() string { return "UpdateVisibleBoxes" }

func (m UpdateVisibleBoxes) apply(s *State) []Effect {
	s.VisibleBoxes = cloneSlice(m.Boxes)
	return nil
}

// ToggleBoxFold folds an unfolded box or unfolds a folded one
type ToggleBoxFold struct {
	Type demo.BoxType
}

func (ToggleBoxFold) Name() string { return "ToggleBoxFold" }

func (m ToggleBoxFold) apply(s *State) []Effect {
	if i := indexOf(s.FoldBoxes, m.Type); i >= 0 {
		s.FoldBoxes = append(s.FoldBoxes[:i:i], s.FoldBoxes[i+1:]...)
	} else {
		s.FoldBoxes = append(s.FoldBoxes, m.Type)
	}
	return nil
}

// SetIframeStatus records the preview frame status token
type SetIframeStatus struct {
	Status string
}

func (SetIframeStatus) Name() string { return "SetIframeStatus" }

func (m SetIframeStatus) apply(s *State) []Effect {
	s.IframeStatus = m.Status
	return nil
}

// SetTransforming flags a transform in progress
type SetTransforming struct {
	Transforming bool
}

func (SetTransforming) Name() string { return "SetTransforming" }

func (m SetTransforming) apply(s *State) []Effect {
	s.Transforming = m.Transforming
	return nil
}

// ToggleAutoRun flips autoRun
type ToggleAutoRun struct{}

func (ToggleAutoRun) Name() string { return "ToggleAutoRun" }

func (ToggleAutoRun) apply(s *State) []Effect {
	s.AutoRun = !s.AutoRun
	return nil
}

// ClearLogs empties the log
type ClearLogs struct{}

func (ClearLogs) Name() string { return "ClearLogs" }

func (ClearLogs) apply(s *State) []Effect {
	s.Logs = []LogEntry{}
	return nil
}

// AddLog appends an entry to the log
type AddLog struct {
	Entry LogEntry
}

func (AddLog) Name() string { return "AddLog" }

func (m AddLog) apply(s *State) []Effect {
	s.Logs = append(s.Logs, m.Entry)
	return nil
}

// UpdateDependencies replaces the dependency lists. A nil Deps resets both
// lists to empty.
type UpdateDependencies struct {
	Deps *Dependencies
}

func (UpdateDependencies) Name() string { return "UpdateDependencies" }

func (m UpdateDependencies) apply(s *State) []Effect {
	if m.Deps == nil {
		s.Dependencies = Dependencies{JS: []string{}, CSS: []string{}}
		return nil
	}
	s.Dependencies = Dependencies{
		JS:  cloneSlice(m.Deps.JS),
		CSS: cloneSlice(m.Deps.CSS),
	}
	return nil
}

// setDemo records which demo the state was loaded from
type setDemo struct {
	name string
}

func (setDemo) Name() string { return "setDemo" }

func (m setDemo) apply(s *State) []Effect {
	s.Demo = m.name
	return nil
}
