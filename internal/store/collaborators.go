package store

import (
	"context"

	"github.com/livetemplate/sandbox/internal/config"
	"github.com/livetemplate/sandbox/internal/demo"
)

// Registry resolves demo references. *registry.Registry implements it.
type Registry interface {
	Resolve(ctx context.Context, ref demo.Ref) (*demo.Definition, error)
	Links() []config.Link
}

// Progress is told when a demo load starts and ends. Calls are fire and
// forget: implementations must not block.
type Progress interface {
	Start()
	Done()
}

// Router is asked to show the not-found page for unknown demos
type Router interface {
	NotFound()
}

// ProgressFuncs adapts two funcs to Progress. Nil funcs are skipped.
type ProgressFuncs struct {
	OnStart func()
	OnDone  func()
}

func (p ProgressFuncs) Start() {
	if p.OnStart != nil {
		p.OnStart()
	}
}

func (p ProgressFuncs) Done() {
	if p.OnDone != nil {
		p.OnDone()
	}
}

// RouterFunc adapts a func to Router
type RouterFunc func()

func (f RouterFunc) NotFound() { f() }

type nopProgress struct{}

func (nopProgress) Start() {}
func (nopProgress) Done()  {}

type nopRouter struct{}

func (nopRouter) NotFound() {}
