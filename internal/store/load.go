package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/livetemplate/sandbox/internal/config"
	"github.com/livetemplate/sandbox/internal/demo"
	"github.com/livetemplate/sandbox/internal/registry"
)

// LoadError is returned by SetBoxes when a demo could not be applied. The
// state is left as it was before the load started.
type LoadError struct {
	Demo       string
	Generation uint64
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load demo %s: %v", e.Demo, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// SetBoxes loads a demo into the state.
//
// Unknown identifiers trigger Router.NotFound and leave the state alone.
// Resolution and shape failures leave boxes, fold, visible and dependency
// state alone, append an error log entry and return a *LoadError.
//
// Every call takes a new load generation. When a newer load starts while
// this one is resolving, this one's results are discarded and SetBoxes
// returns nil. Progress is ended on every path.
func (s *Store) SetBoxes(ctx context.Context, ref demo.Ref) error {
	return s.setBoxes(ctx, s.beginLoad(), ref)
}

// setBoxes runs a load under a generation taken by the caller.
func (s *Store) setBoxes(ctx context.Context, gen uint64, ref demo.Ref) error {
	s.progress.Start()
	defer s.progress.Done()

	if s.debug {
		log.Printf("[Store] Loading %s (generation %d)", ref, gen)
	}

	def, err := s.resolve(ctx, ref)
	if err == nil {
		err = def.Validate()
	}
	if err != nil {
		return s.failLoad(gen, ref, err)
	}

	// Clear and batch share one commit so a superseded load leaves nothing behind.
	batch := append([]Mutation{ClearBoxes{}}, loadBatch(ref, def, s.cfg)...)
	if !s.commit(gen, batch...) {
		s.logStale(ref, gen)
		return nil
	}

	if s.debug {
		log.Printf("[Store] Loaded %s: %d boxes", ref, len(def.Boxes))
	}
	return nil
}

func (s *Store) beginLoad() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

func (s *Store) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.generation
}

func (s *Store) resolve(ctx context.Context, ref demo.Ref) (*demo.Definition, error) {
	if s.registry == nil {
		if ref.IsDirect() {
			return ref.Definition.Clone(), nil
		}
		return nil, &registry.NotFoundError{Name: ref.Name}
	}
	if s.resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.resolveTimeout)
		defer cancel()
	}
	return s.registry.Resolve(ctx, ref)
}

func (s *Store) failLoad(gen uint64, ref demo.Ref, err error) error {
	if !s.isCurrent(gen) {
		s.logStale(ref, gen)
		return nil
	}

	if errors.Is(err, registry.ErrDemoNotFound) {
		log.Printf("[Store] Demo %s not found", ref)
		s.router.NotFound()
		return nil
	}

	if !errors.Is(err, context.Canceled) {
		s.Dispatch(AddLog{Entry: NewLogEntry(LevelError, ref.String(), registry.UserFriendlyMessage(err))})
	}
	return &LoadError{Demo: ref.String(), Generation: gen, Err: err}
}

func (s *Store) logStale(ref demo.Ref, gen uint64) {
	if s.debug {
		log.Printf("[Store] Discarding %s (generation %d superseded)", ref, gen)
	}
}

// loadBatch is every mutation of a load that follows the clear: per-box code and
// transformer, then fold, visible and dependencies.
func loadBatch(ref demo.Ref, def *demo.Definition, cfg *config.Config) []Mutation {
	batch := make([]Mutation, 0, 2*len(def.Boxes)+4)
	for _, e := range def.Boxes {
		batch = append(batch,
			UpdateCode{Type: e.Type, Code: e.Box.Code},
			UpdateTransformer{Type: e.Type, Transformer: e.Box.Transformer},
		)
	}

	fold := def.FoldBoxes
	if fold == nil {
		fold = []demo.BoxType{}
	}
	visible := def.VisibleBoxes
	if visible == nil {
		visible = def.Types()
	}
	deps := MergeDependencies(cfg.GlobalPackages, def.Packages)

	return append(batch,
		UpdateFoldBoxes{Boxes: fold},
		UpdateVisibleBoxes{Boxes: visible},
		UpdateDependencies{Deps: &deps},
		setDemo{name: ref.String()},
	)
}

// MergeDependencies concatenates global and demo packages, globals first.
// Duplicates are kept.
func MergeDependencies(global config.Packages, pkgs *demo.Packages) Dependencies {
	deps := Dependencies{
		JS:  append([]string{}, global.JS...),
		CSS: append([]string{}, global.CSS...),
	}
	if pkgs != nil {
		deps.JS = append(deps.JS, pkgs.JS...)
		deps.CSS = append(deps.CSS, pkgs.CSS...)
	}
	return deps
}
