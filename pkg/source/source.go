// Package source holds the adapters retrieving datasets from external systems.
package source

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

var (
	ErrEmptyName        = errors.New("adapter name must be set")
	ErrAdapterMustBeSet = errors.New("adapter must be set")
	ErrDuplicateAdapter = errors.New("adapter already registered")
)

// Request is what a source step asks an adapter for.
type Request struct {
	// Query is forwarded verbatim to the adapter.
	Query  string
	Params map[string]any
}

// Adapter retrieves a dataset from an external system.
type Adapter interface {
	Retrieve(ctx context.Context, req Request) (*model.Dataset, error)
}

// AdapterFunc turns a function into an Adapter.
type AdapterFunc func(ctx context.Context, req Request) (*model.Dataset, error)

// Retrieve implements Adapter.
func (f AdapterFunc) Retrieve(ctx context.Context, req Request) (*model.Dataset, error) {
	return f(ctx, req)
}

// Registry maps adapter names to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds a under name. A name can only be registered once.
func (r *Registry) Register(name string, a Adapter) error {
	if name == "" {
		return ErrEmptyName
	}

	if a == nil {
		return ErrAdapterMustBeSet
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.adapters[name]; ok {
		return errors.Wrapf(ErrDuplicateAdapter, "adapter %q", name)
	}

	r.adapters[name] = a

	return nil
}

// Lookup returns the adapter registered under name.
func (r *Registry) Lookup(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]

	return a, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// HealthChecker is implemented by adapters able to tell whether their backend is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheck runs the checks of every adapter implementing HealthChecker. Failing adapters
// are mapped to their error; an empty map means all of them passed.
func (r *Registry) HealthCheck(ctx context.Context) map[string]error {
	failed := map[string]error{}

	for _, name := range r.Names() {
		a, _ := r.Lookup(name)

		hc, ok := a.(HealthChecker)
		if !ok {
			continue
		}

		if err := hc.HealthCheck(ctx); err != nil {
			failed[name] = err
		}
	}

	return failed
}
