package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/livetemplate/sandbox/internal/demo"
)

// DemoFileNames are the file names recognised inside a demo directory, in
// lookup order.
var DemoFileNames = []string{"demo.yaml", "demo.yml", "demo.json", "demo.md"}

// FileLoader reads a demo from a .json, .yaml, .yml or .md file on every load
type FileLoader struct {
	name string
	path string
}

// NewFileLoader creates a loader for a single demo file
func NewFileLoader(name, path string) (*FileLoader, error) {
	if path == "" {
		return nil, &ValidationError{Demo: name, Field: "file", Reason: "file is required"}
	}
	if !demo.IsDemoFile(path) {
		return nil, &ValidationError{Demo: name, Field: "file", Reason: fmt.Sprintf("unsupported file type %q", filepath.Ext(path))}
	}
	return &FileLoader{name: name, path: path}, nil
}

// Name returns the demo name
func (l *FileLoader) Name() string {
	return l.name
}

// Path returns the demo file path
func (l *FileLoader) Path() string {
	return l.path
}

// Load reads and parses the file
func (l *FileLoader) Load(ctx context.Context) (*demo.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	def, err := demo.ParseFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &LoadError{Demo: l.name, Operation: "read", Err: err}
		}
		return nil, &LoadError{Demo: l.name, Operation: "decode", Err: err}
	}
	return def, nil
}

// Close is a no-op for file loaders
func (l *FileLoader) Close() error {
	return nil
}

// DirLoader reads demo.(yaml|yml|json|md) from a directory. Box entries in
// the demo file may reference sibling code files.
type DirLoader struct {
	name string
	dir  string
}

// NewDirLoader creates a loader for a demo directory
func NewDirLoader(name, dir string) (*DirLoader, error) {
	if dir == "" {
		return nil, &ValidationError{Demo: name, Field: "dir", Reason: "dir is required"}
	}
	return &DirLoader{name: name, dir: dir}, nil
}

// Name returns the demo name
func (l *DirLoader) Name() string {
	return l.name
}

// Dir returns the demo directory
func (l *DirLoader) Dir() string {
	return l.dir
}

// Load finds the demo file and parses it
func (l *DirLoader) Load(ctx context.Context) (*demo.Definition, error) {
	path, ok := FindDemoFile(l.dir)
	if !ok {
		return nil, &LoadError{
			Demo:      l.name,
			Operation: "read",
			Err:       fmt.Errorf("no demo file in %s", l.dir),
		}
	}
	return (&FileLoader{name: l.name, path: path}).Load(ctx)
}

// Close is a no-op for directory loaders
func (l *DirLoader) Close() error {
	return nil
}

// FindDemoFile returns the first of DemoFileNames present in dir
func FindDemoFile(dir string) (string, bool) {
	for _, name := range DemoFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}
