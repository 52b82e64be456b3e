package source

import (
	"context"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

// Static serves a fixed set of rows.
type Static struct {
	rows []model.Row
}

// NewStatic creates an adapter serving rows. Every retrieve returns a fresh copy.
func NewStatic(rows ...model.Row) *Static {
	return &Static{rows: rows}
}

// Retrieve implements Adapter. The request is ignored.
func (s *Static) Retrieve(ctx context.Context, _ Request) (*model.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return model.NewDataset(s.rows...).Clone(), nil
}
