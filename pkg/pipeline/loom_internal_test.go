package pipeline

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-loom/pkg/pipeline/model"
	"github.com/askiada/go-loom/pkg/shuttle"
)

func TestLoomSettings(t *testing.T) {
	t.Parallel()

	noop := OperationFunc(func(context.Context, model.Inputs) (*model.Dataset, error) {
		return model.NewDataset(), nil
	})

	// three independent sources feeding one step: widest level is 3
	p, err := Load(model.Spec{
		Steps: []model.StepInfo{
			{Name: "a", Kind: model.SourceStepKind, Operation: "op"},
			{Name: "b", Kind: model.SourceStepKind, Operation: "op"},
			{Name: "c", Kind: model.SourceStepKind, Operation: "op"},
			{Name: "d", Kind: model.AggregateStepKind, Operation: "op", DependsOn: []string{"a", "b", "c"}},
		},
		Settings: model.Settings{RunTimeout: time.Second, Workers: 2},
	}, OperationMap{"op": noop})
	require.NoError(t, err)

	tcs := map[string]struct {
		opts    []Option
		mode    model.ExecutionMode
		workers int
		timeout time.Duration
	}{
		"pipeline settings": {
			mode:    model.SequentialMode,
			workers: 1,
			timeout: time.Second,
		},
		"parallel keeps pipeline workers": {
			opts:    []Option{WithMode(model.ParallelMode)},
			mode:    model.ParallelMode,
			workers: 2,
			timeout: time.Second,
		},
		"overrides": {
			opts:    []Option{WithMode(model.ParallelMode), WithWorkers(5), WithRunTimeout(time.Minute)},
			mode:    model.ParallelMode,
			workers: 5,
			timeout: time.Minute,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			l, err := New(shuttle.NewMemory(), tc.opts...)
			require.NoError(t, err)

			s := l.settings(p)
			assert.Equal(t, tc.mode, s.Mode)
			assert.Equal(t, tc.workers, s.Workers)
			assert.Equal(t, tc.timeout, s.RunTimeout)
		})
	}

	t.Run("parallel sizes the pool from the graph", func(t *testing.T) {
		t.Parallel()

		auto := *p
		auto.settings.Workers = 0

		l, err := New(shuttle.NewMemory(), WithMode(model.ParallelMode))
		require.NoError(t, err)

		assert.Equal(t, min(3, runtime.GOMAXPROCS(0)), l.settings(&auto).Workers)
	})
}

func TestStepContext(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithTimeout(context.Background(), time.Hour)

	ctx, cancel := stepContext(parent, 0)
	defer cancel()

	cancelParent()
	assert.NoError(t, ctx.Err())

	parentDeadline, _ := parent.Deadline()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.Equal(t, parentDeadline, deadline)

	short, cancelShort := stepContext(context.Background(), time.Millisecond)
	defer cancelShort()

	<-short.Done()
	assert.ErrorIs(t, short.Err(), context.DeadlineExceeded)
}
