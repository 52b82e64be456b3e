package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-loom/pkg/pipeline"
	"github.com/askiada/go-loom/pkg/pipeline/model"
	"github.com/askiada/go-loom/pkg/shuttle"
)

func sourceStep(name, op string, deps ...string) model.StepInfo {
	return model.StepInfo{Name: name, Kind: model.SourceStepKind, Operation: op, DependsOn: deps}
}

func transformStep(name, op string, deps ...string) model.StepInfo {
	return model.StepInfo{Name: name, Kind: model.TransformStepKind, Operation: op, DependsOn: deps}
}

func cached(step model.StepInfo) model.StepInfo {
	step.Cache.Enabled = true

	return step
}

func load(t *testing.T, spec model.Spec, r pipeline.Resolver) *pipeline.Pipeline {
	t.Helper()

	p, err := pipeline.Load(spec, r)
	require.NoError(t, err)

	return p
}

func newLoom(t *testing.T, opts ...pipeline.Option) (*pipeline.Loom, *shuttle.Memory) {
	t.Helper()

	store := shuttle.NewMemory()
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	opts = append([]pipeline.Option{pipeline.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	l, err := pipeline.New(store, opts...)
	require.NoError(t, err)

	return l, store
}

// rows returns an operation producing rows and counting its calls.
func rows(calls *atomic.Int32, out ...model.Row) model.Operation {
	return pipeline.OperationFunc(func(ctx context.Context, _ model.Inputs) (*model.Dataset, error) {
		calls.Add(1)

		return model.NewDataset(out...), nil
	})
}

// concat returns an operation appending the rows of its inputs.
func concat(calls *atomic.Int32) model.Operation {
	return pipeline.OperationFunc(func(ctx context.Context, in model.Inputs) (*model.Dataset, error) {
		calls.Add(1)

		var out []model.Row
		for _, name := range in.Names {
			ds, _ := in.Dataset(name)
			out = append(out, ds.Rows...)
		}

		return model.NewDataset(out...), nil
	})
}

func failing(calls *atomic.Int32, err error) model.Operation {
	return pipeline.OperationFunc(func(ctx context.Context, _ model.Inputs) (*model.Dataset, error) {
		calls.Add(1)

		return nil, err
	})
}

// blocking returns an operation waiting for its context to end.
func blocking() model.Operation {
	return pipeline.OperationFunc(func(ctx context.Context, _ model.Inputs) (*model.Dataset, error) {
		<-ctx.Done()

		return nil, ctx.Err()
	})
}
