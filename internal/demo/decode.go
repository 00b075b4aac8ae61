package demo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// field is one top-level key of a demo document, kept in document order.
// decode unmarshals the key's value into v.
type field struct {
	key    string
	decode func(v any) error
}

type decodeOptions struct {
	baseDir string
}

// DecodeOption configures demo decoding.
type DecodeOption func(*decodeOptions)

// WithBaseDir allows box entries to reference code files ("file: app.js")
// relative to dir. Without it such entries are rejected.
func WithBaseDir(dir string) DecodeOption {
	return func(o *decodeOptions) {
		o.baseDir = dir
	}
}

// rawBox mirrors a box entry as written in a demo document.
type rawBox struct {
	Code        *string `json:"code" yaml:"code"`
	File        string  `json:"file" yaml:"file"`
	Transformer string  `json:"transformer" yaml:"transformer"`
}

// ParseJSON decodes a JSON demo document, preserving key order.
func ParseJSON(data []byte, opts ...DecodeOption) (*Definition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, &ShapeError{Reason: "invalid JSON: " + err.Error()}
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, &ShapeError{Reason: "demo must be a JSON object"}
	}

	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &ShapeError{Reason: "invalid JSON: " + err.Error()}
		}
		key, ok := tok.(string)
		if !ok {
			return nil, &ShapeError{Reason: fmt.Sprintf("unexpected token %v", tok)}
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, &ShapeError{Key: key, Reason: err.Error()}
		}
		fields = append(fields, field{
			key:    key,
			decode: func(v any) error { return json.Unmarshal(raw, v) },
		})
	}
	if _, err := dec.Token(); err != nil {
		return nil, &ShapeError{Reason: "invalid JSON: " + err.Error()}
	}

	return decodeFields(fields, newOptions(opts))
}

// ParseYAML decodes a YAML demo document, preserving key order.
func ParseYAML(data []byte, opts ...DecodeOption) (*Definition, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ShapeError{Reason: "invalid YAML: " + err.Error()}
	}
	if len(doc.Content) == 0 {
		return nil, &ShapeError{Reason: "empty document"}
	}
	return FromYAML(doc.Content[0], opts...)
}

// FromYAML decodes a demo from an already parsed YAML mapping node, as found
// for inline definitions in sandbox.yaml.
func FromYAML(n *yaml.Node, opts ...DecodeOption) (*Definition, error) {
	if n == nil {
		return nil, &ShapeError{Reason: "empty document"}
	}
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return nil, &ShapeError{Reason: "demo must be a mapping"}
	}

	fields := make([]field, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		fields = append(fields, field{key: n.Content[i].Value, decode: n.Content[i+1].Decode})
	}
	return decodeFields(fields, newOptions(opts))
}

// ParseFile picks a decoder from the file extension (.json, .yaml, .yml, .md).
// Code file references resolve relative to the file's directory.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	base := WithBaseDir(filepath.Dir(path))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data, base)
	case ".yaml", ".yml":
		return ParseYAML(data, base)
	case ".md", ".markdown":
		return ParseMarkdown(data)
	default:
		return nil, fmt.Errorf("unsupported demo file type: %s", filepath.Ext(path))
	}
}

// IsDemoFile reports whether ParseFile understands path.
func IsDemoFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml", ".md", ".markdown":
		return true
	}
	return false
}

func newOptions(opts []DecodeOption) decodeOptions {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func decodeFields(fields []field, o decodeOptions) (*Definition, error) {
	def := &Definition{}
	for _, f := range fields {
		switch f.key {
		case KeyFoldBoxes, KeyVisibleBoxes:
			var list []string
			if err := f.decode(&list); err != nil {
				return nil, &ShapeError{Key: f.key, Reason: "expected a list of box types"}
			}
			types, err := toTypes(f.key, list)
			if err != nil {
				return nil, err
			}
			if f.key == KeyFoldBoxes {
				def.FoldBoxes = types
			} else {
				def.VisibleBoxes = types
			}
		case KeyPackages:
			var p Packages
			if err := f.decode(&p); err != nil {
				return nil, &ShapeError{Key: f.key, Reason: "expected {js: [...], css: [...]}"}
			}
			def.Packages = &p
		default:
			t, err := ParseBoxType(f.key)
			if err != nil {
				return nil, &ShapeError{Key: f.key, Reason: err.Error()}
			}
			if _, dup := def.Box(t); dup {
				return nil, &ShapeError{Key: f.key, Reason: "duplicate box"}
			}
			var rb rawBox
			if err := f.decode(&rb); err != nil {
				return nil, &ShapeError{Key: f.key, Reason: "expected {code, transformer}"}
			}
			box, err := rb.resolve(f.key, o)
			if err != nil {
				return nil, err
			}
			def.Boxes = append(def.Boxes, BoxEntry{Type: t, Box: box})
		}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (rb rawBox) resolve(key string, o decodeOptions) (Box, error) {
	box := Box{Transformer: rb.Transformer}
	switch {
	case rb.Code != nil:
		box.Code = *rb.Code
	case rb.File != "":
		if o.baseDir == "" {
			return Box{}, &ShapeError{Key: key, Reason: "file references are not allowed here"}
		}
		path, err := containedPath(o.baseDir, rb.File)
		if err != nil {
			return Box{}, &ShapeError{Key: key, Reason: err.Error()}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Box{}, fmt.Errorf("box %s: %w", key, err)
		}
		box.Code = string(data)
	default:
		return Box{}, &ShapeError{Key: key, Reason: "missing code"}
	}
	return box, nil
}

// containedPath joins rel onto dir and refuses results outside dir.
func containedPath(dir, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("file %q must be relative", rel)
	}
	path := filepath.Join(dir, rel)
	r, err := filepath.Rel(dir, path)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("file %q escapes the demo directory", rel)
	}
	return path, nil
}

func toTypes(key string, list []string) ([]BoxType, error) {
	if list == nil {
		return nil, nil
	}
	types := make([]BoxType, 0, len(list))
	for _, s := range list {
		t, err := ParseBoxType(s)
		if err != nil {
			return nil, &ShapeError{Key: key, Reason: err.Error()}
		}
		types = append(types, t)
	}
	return types, nil
}
