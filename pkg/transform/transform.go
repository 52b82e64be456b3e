// Package transform holds the operations run by transform and aggregate steps.
package transform

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

var (
	ErrEmptyName          = errors.New("transform name must be set")
	ErrTransformMustBeSet = errors.New("transform must be set")
	ErrDuplicateTransform = errors.New("transform already registered")
	ErrInvalidParams      = errors.New("invalid params")
	ErrMissingInput       = errors.New("missing input")
)

// Func derives a dataset from the datasets of the dependencies of a step.
type Func func(ctx context.Context, in model.Inputs, params map[string]any) (*model.Dataset, error)

// Registry maps transform names to functions.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Builtins returns a registry holding the built-in transforms.
func Builtins() *Registry {
	r := NewRegistry()
	for name, fn := range map[string]Func{
		"concat":  Concat,
		"filter":  Filter,
		"project": Project,
		"limit":   Limit,
		"count":   Count,
	} {
		// names are distinct
		_ = r.Register(name, fn)
	}

	return r
}

// Register adds fn under name. A name can only be registered once.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return ErrEmptyName
	}

	if fn == nil {
		return ErrTransformMustBeSet
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.funcs[name]; ok {
		return errors.Wrapf(ErrDuplicateTransform, "transform %q", name)
	}

	r.funcs[name] = fn

	return nil
}

// Lookup returns the transform registered under name.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.funcs[name]

	return fn, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
