package source_test

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-loom/pkg/pipeline/model"
	"github.com/askiada/go-loom/pkg/source"
)

func newKV(t *testing.T, values map[string]string) *badger.DB {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, db.Close())
	})

	err = db.Update(func(txn *badger.Txn) error {
		for k, v := range values {
			if err := txn.Set([]byte(k), []byte(v)); err != nil {
				return err
			}
		}

		return nil
	})
	require.NoError(t, err)

	return db
}

func TestKVRetrieve(t *testing.T) {
	t.Parallel()

	db := newKV(t, map[string]string{
		"user/1":  `{"name":"ada"}`,
		"user/2":  `"grace"`,
		"order/1": `{"total":3}`,
	})

	tcs := map[string]struct {
		req      source.Request
		expected []model.Row
	}{
		"prefix": {
			req: source.Request{Query: "user/"},
			expected: []model.Row{
				{"_key": "user/1", "name": "ada"},
				{"_key": "user/2", "value": "grace"},
			},
		},
		"limit": {
			req:      source.Request{Query: "user/", Params: map[string]any{"limit": 1}},
			expected: []model.Row{{"_key": "user/1", "name": "ada"}},
		},
		"no match": {
			req:      source.Request{Query: "missing/"},
			expected: []model.Row{},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ds, err := source.NewKV(db).Retrieve(context.Background(), tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ds.Rows)
		})
	}
}

func TestKVInvalidValue(t *testing.T) {
	t.Parallel()

	db := newKV(t, map[string]string{"bad": `{`})

	_, err := source.NewKV(db).Retrieve(context.Background(), source.Request{Query: "bad"})
	assert.Error(t, err)
}

func TestKVInvalidLimit(t *testing.T) {
	t.Parallel()

	db := newKV(t, nil)

	_, err := source.NewKV(db).Retrieve(context.Background(), source.Request{Params: map[string]any{"limit": "ten"}})
	assert.Error(t, err)
}
