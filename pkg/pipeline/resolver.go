package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/askiada/go-loom/pkg/pipeline/model"
	"github.com/askiada/go-loom/pkg/source"
	"github.com/askiada/go-loom/pkg/transform"
)

// Resolver turns the operation reference of a step into an operation.
type Resolver interface {
	Resolve(step model.StepInfo) (model.Operation, error)
}

// ResolverFunc turns a function into a Resolver.
type ResolverFunc func(step model.StepInfo) (model.Operation, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(step model.StepInfo) (model.Operation, error) {
	return f(step)
}

// OperationFunc turns a function into an operation.
type OperationFunc func(ctx context.Context, in model.Inputs) (*model.Dataset, error)

// Execute implements model.Operation.
func (f OperationFunc) Execute(ctx context.Context, in model.Inputs) (*model.Dataset, error) {
	return f(ctx, in)
}

// OperationMap resolves operation names directly.
type OperationMap map[string]model.Operation

// Resolve implements Resolver.
func (m OperationMap) Resolve(step model.StepInfo) (model.Operation, error) {
	op, ok := m[step.Operation]
	if !ok || op == nil {
		return nil, errors.Errorf("operation %q is not registered", step.Operation)
	}

	return op, nil
}

// Registry resolves source steps to adapters and the other steps to transforms.
type Registry struct {
	sources    *source.Registry
	transforms *transform.Registry
}

// NewRegistry creates a resolver over both registries. A nil registry resolves nothing.
func NewRegistry(sources *source.Registry, transforms *transform.Registry) *Registry {
	if sources == nil {
		sources = source.NewRegistry()
	}

	if transforms == nil {
		transforms = transform.NewRegistry()
	}

	return &Registry{sources: sources, transforms: transforms}
}

// Resolve implements Resolver.
func (r *Registry) Resolve(step model.StepInfo) (model.Operation, error) {
	if step.Kind == model.SourceStepKind {
		adapter, ok := r.sources.Lookup(step.Operation)
		if !ok {
			return nil, errors.Errorf("adapter %q is not registered", step.Operation)
		}

		return &fetch{adapter: adapter, req: source.Request{Query: step.Query, Params: step.Params}}, nil
	}

	fn, ok := r.transforms.Lookup(step.Operation)
	if !ok {
		return nil, errors.Errorf("transform %q is not registered", step.Operation)
	}

	return &apply{fn: fn, params: step.Params}, nil
}

// fetch runs the request of a source step against its adapter.
type fetch struct {
	adapter source.Adapter
	req     source.Request
}

func (f *fetch) Execute(ctx context.Context, _ model.Inputs) (*model.Dataset, error) {
	return f.adapter.Retrieve(ctx, f.req)
}

type apply struct {
	fn     transform.Func
	params map[string]any
}

func (a *apply) Execute(ctx context.Context, in model.Inputs) (*model.Dataset, error) {
	return a.fn(ctx, in, a.params)
}
