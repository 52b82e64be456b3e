package source

import (
	"context"
	"encoding/json"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

// KeyField holds the badger key of a row produced by KV.
const KeyField = "_key"

// KV scans a badger database. The query is the key prefix.
type KV struct {
	db *badger.DB
}

// NewKV creates an adapter reading from db.
func NewKV(db *badger.DB) *KV {
	return &KV{db: db}
}

// HealthCheck implements HealthChecker.
func (k *KV) HealthCheck(context.Context) error {
	if k.db.IsClosed() {
		return errors.New("database is closed")
	}

	return nil
}

// Retrieve implements Adapter. JSON object values become rows, any other value is stored
// under "value". The "limit" param bounds the number of rows.
func (k *KV) Retrieve(ctx context.Context, req Request) (*model.Dataset, error) {
	limit, err := intParam(req.Params, "limit")
	if err != nil {
		return nil, err
	}

	var rows []model.Row

	err = k.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(req.Query)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			if limit > 0 && len(rows) == limit {
				return nil
			}

			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return errors.Wrapf(err, "unable to read %s", item.Key())
			}

			row, err := decodeRow(raw)
			if err != nil {
				return errors.Wrapf(err, "unable to decode %s", item.Key())
			}

			row[KeyField] = string(item.KeyCopy(nil))
			rows = append(rows, row)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return model.NewDataset(rows...), nil
}

func decodeRow(raw []byte) (model.Row, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}

	if obj, ok := v.(map[string]any); ok {
		return model.Row(obj), nil
	}

	return model.Row{"value": v}, nil
}

func intParam(params map[string]any, name string) (int, error) {
	v, ok := params[name]
	if !ok {
		return 0, nil
	}

	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, errors.Errorf("param %q must be a number, got %T", name, v)
	}
}
