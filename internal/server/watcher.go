package server

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// watchSettle is how long the watcher waits for a burst of file events
// (editors often write, rename and chmod in quick succession) to end.
const watchSettle = 100 * time.Millisecond

// Watcher watches the demos directory and reports changed files in batches.
type Watcher struct {
	watcher  *fsnotify.Watcher
	rootDir  string
	onChange func(paths []string)
	settle   func(f func())
	done     chan struct{}
	stopOnce sync.Once
	debug    bool

	mu      sync.Mutex
	pending map[string]bool
}

// NewWatcher creates a watcher for rootDir and its subdirectories.
// onChange receives the absolute paths changed since the last call.
func NewWatcher(rootDir string, onChange func([]string), debug bool) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fsWatcher,
		rootDir:  rootDir,
		onChange: onChange,
		settle:   debounce.New(watchSettle),
		done:     make(chan struct{}),
		debug:    debug,
		pending:  make(map[string]bool),
	}

	if err := w.addDirectoryRecursive(rootDir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return w, nil
}

// addDirectoryRecursive adds a directory and all its subdirectories to the watcher.
func (w *Watcher) addDirectoryRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			return err
		}
		if w.debug {
			log.Printf("[Watch] Added directory: %s", path)
		}
		return nil
	})
}

// Start begins watching for file changes.
func (w *Watcher) Start() {
	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[Watch] Error: %v", err)

			case <-w.done:
				return
			}
		}
	}()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	// New subdirectories (a freshly created demo) need their own watch
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirectoryRecursive(event.Name); err != nil {
				log.Printf("[Watch] Failed to watch %s: %v", event.Name, err)
			}
		}
	}

	if w.debug {
		rel, err := filepath.Rel(w.rootDir, event.Name)
		if err != nil {
			rel = event.Name
		}
		log.Printf("[Watch] %s: %s", event.Op, rel)
	}

	w.mu.Lock()
	w.pending[event.Name] = true
	w.mu.Unlock()
	w.settle(w.flush)
}

func (w *Watcher) flush() {
	select {
	case <-w.done:
		return
	default:
	}

	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	if len(paths) == 0 {
		return
	}
	sort.Strings(paths)
	w.onChange(paths)
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
