// Package demo defines the shape of a sandbox demo: an ordered set of code
// boxes plus presentation hints and the external packages the preview needs.
package demo

import (
	"fmt"
	"regexp"
)

// Reserved keys of a demo definition. Every other top-level key is a box.
const (
	KeyFoldBoxes    = "foldBoxes"
	KeyVisibleBoxes = "visibleBoxes"
	KeyPackages     = "packages"
)

var boxTypePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// BoxType identifies a code panel ("html", "js", "css", ...). The set is
// open-ended and defined by each demo.
type BoxType string

// ParseBoxType validates s and returns it as a BoxType.
func ParseBoxType(s string) (BoxType, error) {
	if !boxTypePattern.MatchString(s) {
		return "", fmt.Errorf("invalid box type %q", s)
	}
	if isReserved(s) {
		return "", fmt.Errorf("box type %q collides with a reserved key", s)
	}
	return BoxType(s), nil
}

// Valid reports whether t is a usable box type.
func (t BoxType) Valid() bool {
	return boxTypePattern.MatchString(string(t)) && !isReserved(string(t))
}

func isReserved(s string) bool {
	return s == KeyFoldBoxes || s == KeyVisibleBoxes || s == KeyPackages
}

// Box is the content of one code panel.
type Box struct {
	Code        string `json:"code" yaml:"code"`
	Transformer string `json:"transformer,omitempty" yaml:"transformer,omitempty"`
}

// BoxEntry pairs a box with its type, keeping the order the demo defined.
type BoxEntry struct {
	Type BoxType
	Box  Box
}

// Packages lists external script and stylesheet URLs a demo depends on.
type Packages struct {
	JS  []string `json:"js,omitempty" yaml:"js,omitempty"`
	CSS []string `json:"css,omitempty" yaml:"css,omitempty"`
}

// Definition is a resolved demo.
//
// A nil FoldBoxes or VisibleBoxes means the demo did not specify it; an empty
// non-nil slice is an explicit empty list.
type Definition struct {
	FoldBoxes    []BoxType
	VisibleBoxes []BoxType
	Packages     *Packages
	Boxes        []BoxEntry
}

// Types returns the box types in definition order.
func (d *Definition) Types() []BoxType {
	types := make([]BoxType, 0, len(d.Boxes))
	for _, e := range d.Boxes {
		types = append(types, e.Type)
	}
	return types
}

// Box looks up a box by type.
func (d *Definition) Box(t BoxType) (Box, bool) {
	for _, e := range d.Boxes {
		if e.Type == t {
			return e.Box, true
		}
	}
	return Box{}, false
}

// SetBox adds a box or replaces the content of an existing one in place.
func (d *Definition) SetBox(t BoxType, b Box) {
	for i := range d.Boxes {
		if d.Boxes[i].Type == t {
			d.Boxes[i].Box = b
			return
		}
	}
	d.Boxes = append(d.Boxes, BoxEntry{Type: t, Box: b})
}

// Validate performs the shape check that runs before a definition is
// applied to sandbox state.
func (d *Definition) Validate() error {
	if d == nil {
		return &ShapeError{Reason: "definition is nil"}
	}
	seen := make(map[BoxType]bool, len(d.Boxes))
	for _, e := range d.Boxes {
		if !e.Type.Valid() {
			return &ShapeError{Key: string(e.Type), Reason: "invalid box type"}
		}
		if seen[e.Type] {
			return &ShapeError{Key: string(e.Type), Reason: "duplicate box"}
		}
		seen[e.Type] = true
	}
	for _, t := range d.FoldBoxes {
		if !t.Valid() {
			return &ShapeError{Key: KeyFoldBoxes, Reason: fmt.Sprintf("invalid box type %q", t)}
		}
	}
	for _, t := range d.VisibleBoxes {
		if !t.Valid() {
			return &ShapeError{Key: KeyVisibleBoxes, Reason: fmt.Sprintf("invalid box type %q", t)}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	out := &Definition{
		FoldBoxes:    cloneTypes(d.FoldBoxes),
		VisibleBoxes: cloneTypes(d.VisibleBoxes),
		Boxes:        append([]BoxEntry(nil), d.Boxes...),
	}
	if d.Packages != nil {
		out.Packages = &Packages{
			JS:  append([]string(nil), d.Packages.JS...),
			CSS: append([]string(nil), d.Packages.CSS...),
		}
	}
	return out
}

func cloneTypes(in []BoxType) []BoxType {
	if in == nil {
		return nil
	}
	out := make([]BoxType, len(in))
	copy(out, in)
	return out
}

// Ref names the demo a load request refers to: either a registry key or a
// definition supplied directly by the caller.
type Ref struct {
	Name       string
	Definition *Definition
}

// Named returns a Ref to a registry entry.
func Named(name string) Ref {
	return Ref{Name: name}
}

// Direct returns a Ref carrying its own definition.
func Direct(def *Definition) Ref {
	return Ref{Definition: def}
}

// IsDirect reports whether r carries a definition.
func (r Ref) IsDirect() bool {
	return r.Definition != nil
}

func (r Ref) String() string {
	if r.IsDirect() {
		return "<inline>"
	}
	return r.Name
}

// ShapeError reports a malformed demo definition.
type ShapeError struct {
	Key    string
	Reason string
}

func (e *ShapeError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("malformed demo: %s: %s", e.Key, e.Reason)
	}
	return "malformed demo: " + e.Reason
}
