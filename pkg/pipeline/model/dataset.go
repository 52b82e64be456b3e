package model

import (
	"context"
	"time"
)

// Row is a single record of a dataset.
type Row map[string]any

// Dataset is the value produced by a step.
//
// A dataset is shared with every dependent of the step that produced it and must not
// be mutated once the step returned it.
type Dataset struct {
	Step        string    `json:"step"`
	Rows        []Row     `json:"rows"`
	CreatedAt   time.Time `json:"created_at"`
	SizeHint    int       `json:"size_hint"`
	Fingerprint string    `json:"fingerprint"`
}

// NewDataset returns a dataset holding rows.
func NewDataset(rows ...Row) *Dataset {
	if rows == nil {
		rows = []Row{}
	}

	return &Dataset{Rows: rows, SizeHint: len(rows)}
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}

	return len(d.Rows)
}

// Clone returns a copy of the dataset deep enough to be modified by the caller.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}

	out := *d
	out.Rows = make([]Row, len(d.Rows))

	for i, row := range d.Rows {
		cp := make(Row, len(row))
		for k, v := range row {
			cp[k] = v
		}

		out.Rows[i] = cp
	}

	return &out
}

// Inputs is what an operation receives.
type Inputs struct {
	// Names lists the dependencies in declaration order.
	Names    []string
	Datasets map[string]*Dataset
	// Run holds the inputs given to the pipeline run.
	Run map[string]any
}

// Dataset returns the dataset published by the named dependency.
func (in Inputs) Dataset(name string) (*Dataset, bool) {
	ds, ok := in.Datasets[name]

	return ds, ok
}

// Operation is the capability every step resolves to at load time.
type Operation interface {
	Execute(ctx context.Context, in Inputs) (*Dataset, error)
}
