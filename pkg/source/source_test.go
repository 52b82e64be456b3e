package source_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-loom/pkg/pipeline/model"
	"github.com/askiada/go-loom/pkg/source"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := source.NewRegistry()
	static := source.NewStatic(model.Row{"id": 1})

	require.NoError(t, reg.Register("seed", static))
	assert.ErrorIs(t, reg.Register("seed", static), source.ErrDuplicateAdapter)
	assert.ErrorIs(t, reg.Register("", static), source.ErrEmptyName)
	assert.ErrorIs(t, reg.Register("nil", nil), source.ErrAdapterMustBeSet)

	got, ok := reg.Lookup("seed")
	require.True(t, ok)
	assert.Same(t, static, got)

	_, ok = reg.Lookup("missing")
	assert.False(t, ok)

	require.NoError(t, reg.Register("another", source.AdapterFunc(func(context.Context, source.Request) (*model.Dataset, error) {
		return model.NewDataset(), nil
	})))
	assert.Equal(t, []string{"another", "seed"}, reg.Names())
}

type checkedAdapter struct {
	source.Static
	err error
}

func (a *checkedAdapter) HealthCheck(context.Context) error {
	return a.err
}

func TestRegistryHealthCheck(t *testing.T) {
	t.Parallel()

	errDown := errors.New("down")

	closed, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	require.NoError(t, closed.Close())

	reg := source.NewRegistry()
	require.NoError(t, reg.Register("plain", source.NewStatic()))
	require.NoError(t, reg.Register("healthy", &checkedAdapter{}))
	require.NoError(t, reg.Register("broken", &checkedAdapter{err: errDown}))
	require.NoError(t, reg.Register("closed", source.NewKV(closed)))

	failed := reg.HealthCheck(context.Background())
	assert.Len(t, failed, 2)
	assert.ErrorIs(t, failed["broken"], errDown)
	assert.Error(t, failed["closed"])
}

func TestStaticReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	static := source.NewStatic(model.Row{"id": 1})

	first, err := static.Retrieve(ctx, source.Request{})
	require.NoError(t, err)
	first.Rows[0]["id"] = 2

	second, err := static.Retrieve(ctx, source.Request{})
	require.NoError(t, err)
	assert.Equal(t, []model.Row{{"id": 1}}, second.Rows)
}

func TestStaticCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := source.NewStatic().Retrieve(ctx, source.Request{})
	assert.ErrorIs(t, err, context.Canceled)
}
