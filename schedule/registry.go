package schedule

import (
	"context"
	"sync"

	"github.com/tidebell/tidebell/errors"
)

// UnitOfWork is the executable business logic a scheduled job invokes.
//
// Implementations must honor ctx cancellation: a cancelled job has to stop
// producing visible side effects immediately, not after its current run
// completes. Long-running work should detach its own execution rather than
// hold a firing worker for its full duration.
type UnitOfWork interface {
	// Execute runs one firing. Outcome is reported through side effects
	// (bridge publishes, notifications); the returned error only drives
	// status bookkeeping and logging.
	Execute(ctx context.Context, firing Firing) error

	// Name returns the registry key (e.g. "crawl.board-posts").
	Name() string
}

// UnitFunc adapts a plain function to the UnitOfWork interface.
type UnitFunc struct {
	UnitName string
	Fn       func(ctx context.Context, firing Firing) error
}

func (u UnitFunc) Execute(ctx context.Context, firing Firing) error { return u.Fn(ctx, firing) }
func (u UnitFunc) Name() string                                     { return u.UnitName }

// Registry maps job names to units of work.
// Populated once at startup, before recovery runs; thread-safe for
// concurrent lookup afterwards.
type Registry struct {
	units map[string]UnitOfWork
	mu    sync.RWMutex
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		units: make(map[string]UnitOfWork),
	}
}

// Register adds a unit of work under its name.
// Panics if the name is already registered; duplicate registration is a
// wiring bug, not a runtime condition.
func (r *Registry) Register(unit UnitOfWork) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := unit.Name()
	if _, exists := r.units[name]; exists {
		panic(errors.Newf("unit of work already registered for name: %s", name))
	}
	r.units[name] = unit
}

// Get retrieves the unit of work for a job name.
// Returns nil if no unit is registered.
func (r *Registry) Get(name string) UnitOfWork {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.units[name]
}

// Has checks if a unit of work is registered for a name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.units[name]
	return exists
}

// Names returns all registered job names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.units))
	for name := range r.units {
		names = append(names, name)
	}
	return names
}
