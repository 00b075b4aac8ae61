package registry

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/livetemplate/sandbox/internal/config"
	"github.com/livetemplate/sandbox/internal/demo"
)

// FromConfig builds the registry described by cfg. Relative paths resolve
// against baseDir. Explicit manifest entries take precedence over demos
// found in the demos directory, which take precedence over catalog rows.
func FromConfig(cfg *config.Config, baseDir string) (*Registry, error) {
	r := New()
	r.SetDebug(cfg.Debug)

	fail := func(err error) (*Registry, error) {
		r.Close()
		return nil, err
	}

	for _, name := range cfg.DemoNames() {
		dc := cfg.Demos[name]
		l, err := newLoader(name, dc, baseDir)
		if err != nil {
			return fail(err)
		}
		if ttl := dc.GetCacheTTL(); ttl > 0 {
			l = NewCachedLoader(l, r.Cache(), ttl)
		}
		r.RegisterLoader(name, l)
		if dc.Title != "" {
			r.SetTitle(name, dc.Title)
		}
	}

	scanned, err := ScanDir(cfg.GetDemosDir(baseDir))
	if err != nil {
		return fail(err)
	}
	for _, l := range scanned {
		if r.Has(l.Name()) {
			continue
		}
		r.RegisterLoader(l.Name(), l)
	}

	for i, cc := range cfg.Catalogs {
		cat, err := openCatalog(cc, baseDir)
		if err != nil {
			return fail(fmt.Errorf("catalog %d: %w", i, err))
		}
		r.addCloser(cat)

		names, err := cat.Names(context.Background())
		if err != nil {
			return fail(fmt.Errorf("catalog %d: %w", i, err))
		}
		for _, name := range names {
			if r.Has(name) {
				continue
			}
			var l Loader = cat.Loader(name)
			if ttl := cc.GetCacheTTL(); ttl > 0 {
				l = NewCachedLoader(l, r.Cache(), ttl)
			}
			r.RegisterLoader(name, l)
		}
	}

	r.SetLinks(cfg.Links)

	log.Printf("[Registry] %d demos available", len(r.Names()))
	return r, nil
}

func newLoader(name string, dc config.DemoConfig, baseDir string) (Loader, error) {
	switch dc.Type {
	case "inline":
		def, err := demo.FromYAML(dc.Definition, demo.WithBaseDir(baseDir))
		if err != nil {
			return nil, NewLoadError(name, "decode", err)
		}
		return NewStaticLoader(name, def), nil
	case "file":
		return NewFileLoader(name, resolvePath(baseDir, dc.File))
	case "dir":
		return NewDirLoader(name, resolvePath(baseDir, dc.Dir))
	case "rest":
		return NewRestLoader(name, dc)
	default:
		return nil, &ValidationError{Demo: name, Field: "type", Reason: fmt.Sprintf("unsupported type %q", dc.Type)}
	}
}

func openCatalog(cc config.CatalogConfig, baseDir string) (*Catalog, error) {
	switch cc.Type {
	case "sqlite":
		return OpenSQLiteCatalog(cc.GetDB(), cc.GetTable(), baseDir)
	case "pg":
		return OpenPostgresCatalog(cc.GetDSN(), cc.GetTable())
	default:
		return nil, fmt.Errorf("unsupported catalog type %q", cc.Type)
	}
}

func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ScanDir finds demos in dir: every subdirectory holding a demo file
// becomes a DirLoader named after the subdirectory, and every top-level
// demo file becomes a FileLoader named after the file without extension.
// A missing dir yields no demos.
func ScanDir(dir string) ([]Loader, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read demos dir: %w", err)
	}

	seen := make(map[string]bool)
	var loaders []Loader
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") || strings.HasPrefix(entry.Name(), "_") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if _, ok := FindDemoFile(path); !ok {
				continue
			}
			if seen[entry.Name()] {
				continue
			}
			seen[entry.Name()] = true
			l, _ := NewDirLoader(entry.Name(), path)
			loaders = append(loaders, l)
			continue
		}

		if !demo.IsDemoFile(path) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if seen[name] {
			log.Printf("[Registry] Skipping %s: demo %q already defined", path, name)
			continue
		}
		seen[name] = true
		l, err := NewFileLoader(name, path)
		if err != nil {
			return nil, err
		}
		loaders = append(loaders, l)
	}
	return loaders, nil
}

// LoaderPath returns the file or directory a loader reads from, if any
func LoaderPath(l Loader) (string, bool) {
	if cl, ok := l.(*CachedLoader); ok {
		l = cl.Inner()
	}
	switch v := l.(type) {
	case *FileLoader:
		return v.Path(), true
	case *DirLoader:
		return v.Dir(), true
	}
	return "", false
}

// Loader returns the registered loader for name
func (r *Registry) Loader(name string) (Loader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loaders[name]
	return l, ok
}

// NameForPath maps a changed file back to the demo that reads it
func (r *Registry) NameForPath(path string) (string, bool) {
	path = filepath.Clean(path)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, l := range r.loaders {
		p, ok := LoaderPath(l)
		if !ok {
			continue
		}
		p = filepath.Clean(p)
		if p == path {
			return name, true
		}
		if _, isDir := l.(*DirLoader); isDir || isCachedDir(l) {
			if strings.HasPrefix(path, p+string(filepath.Separator)) {
				return name, true
			}
		}
	}
	return "", false
}

func isCachedDir(l Loader) bool {
	cl, ok := l.(*CachedLoader)
	if !ok {
		return false
	}
	_, isDir := cl.Inner().(*DirLoader)
	return isDir
}

// AddScanned registers demos found in dir that the registry does not know
// yet and returns their names.
func (r *Registry) AddScanned(dir string) ([]string, error) {
	loaders, err := ScanDir(dir)
	if err != nil {
		return nil, err
	}
	var added []string
	for _, l := range loaders {
		if r.Has(l.Name()) {
			continue
		}
		r.RegisterLoader(l.Name(), l)
		added = append(added, l.Name())
	}
	if len(added) > 0 {
		log.Printf("[Registry] Added %d new demo(s): %s", len(added), strings.Join(added, ", "))
	}
	return added, nil
}
