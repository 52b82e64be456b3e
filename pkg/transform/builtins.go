package transform

import (
	"context"
	"fmt"
	"reflect"

	"github.com/pkg/errors"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

// Concat returns the rows of every input, in dependency order.
func Concat(ctx context.Context, in model.Inputs, _ map[string]any) (*model.Dataset, error) {
	var rows []model.Row

	for _, name := range in.Names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ds, ok := in.Dataset(name)
		if !ok {
			continue
		}

		rows = append(rows, ds.Rows...)
	}

	return model.NewDataset(rows...), nil
}

// Filter keeps the rows whose "field" equals "equals". Numbers are compared by value.
func Filter(ctx context.Context, in model.Inputs, params map[string]any) (*model.Dataset, error) {
	field, err := stringParam(params, "field")
	if err != nil {
		return nil, err
	}

	want, ok := params["equals"]
	if !ok {
		return nil, errors.Wrap(ErrInvalidParams, `"equals" must be set`)
	}

	src, err := single(in)
	if err != nil {
		return nil, err
	}

	rows := make([]model.Row, 0, src.Len())
	for _, row := range src.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if got, ok := row[field]; ok && equal(got, want) {
			rows = append(rows, row)
		}
	}

	return model.NewDataset(rows...), nil
}

// Project keeps the listed "fields" of every row.
func Project(ctx context.Context, in model.Inputs, params map[string]any) (*model.Dataset, error) {
	fields, err := stringsParam(params, "fields")
	if err != nil {
		return nil, err
	}

	src, err := single(in)
	if err != nil {
		return nil, err
	}

	rows := make([]model.Row, 0, src.Len())
	for _, row := range src.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out := make(model.Row, len(fields))
		for _, f := range fields {
			if v, ok := row[f]; ok {
				out[f] = v
			}
		}
		rows = append(rows, out)
	}

	return model.NewDataset(rows...), nil
}

// Limit keeps the first "n" rows.
func Limit(_ context.Context, in model.Inputs, params map[string]any) (*model.Dataset, error) {
	n, err := intParam(params, "n")
	if err != nil {
		return nil, err
	}

	if n < 0 {
		return nil, errors.Wrap(ErrInvalidParams, `"n" must not be negative`)
	}

	src, err := single(in)
	if err != nil {
		return nil, err
	}

	rows := src.Rows
	if len(rows) > n {
		rows = rows[:n]
	}

	return model.NewDataset(rows...), nil
}

// Count returns one row per input holding its row count, or a single total row when the
// "total" param is true.
func Count(_ context.Context, in model.Inputs, params map[string]any) (*model.Dataset, error) {
	total, _ := params["total"].(bool)

	if total {
		n := 0
		for _, name := range in.Names {
			ds, _ := in.Dataset(name)
			n += ds.Len()
		}

		return model.NewDataset(model.Row{"count": n}), nil
	}

	rows := make([]model.Row, 0, len(in.Names))
	for _, name := range in.Names {
		ds, ok := in.Dataset(name)
		if !ok {
			continue
		}
		rows = append(rows, model.Row{"input": name, "count": ds.Len()})
	}

	return model.NewDataset(rows...), nil
}

func single(in model.Inputs) (*model.Dataset, error) {
	for _, name := range in.Names {
		if ds, ok := in.Dataset(name); ok {
			return ds, nil
		}
	}

	return nil, ErrMissingInput
}

func equal(a, b any) bool {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return x == y
		}
	}

	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func stringParam(params map[string]any, name string) (string, error) {
	v, ok := params[name].(string)
	if !ok || v == "" {
		return "", errors.Wrapf(ErrInvalidParams, "%q must be a non empty string", name)
	}

	return v, nil
}

func stringsParam(params map[string]any, name string) ([]string, error) {
	switch v := params[name].(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errors.Wrapf(ErrInvalidParams, "%q must only hold strings", name)
			}
			out = append(out, s)
		}

		return out, nil
	default:
		return nil, errors.Wrapf(ErrInvalidParams, "%q must be a list of strings", name)
	}
}

func intParam(params map[string]any, name string) (int, error) {
	n, ok := toFloat(params[name])
	if !ok {
		return 0, errors.Wrapf(ErrInvalidParams, "%q must be a number", name)
	}

	if n != float64(int(n)) {
		return 0, errors.Wrapf(ErrInvalidParams, "%q must be an integer, got %s", name, fmt.Sprint(n))
	}

	return int(n), nil
}
