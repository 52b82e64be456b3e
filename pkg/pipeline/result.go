package pipeline

import (
	"time"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

// Result is the outcome of a successful run.
type Result struct {
	RunID    string
	Pipeline string
	// Outputs holds the datasets of the terminal steps. A skipped optional terminal is absent.
	Outputs map[string]*model.Dataset
	// Executed lists the steps whose operation ran, in topological order.
	Executed []string
	// CacheHits lists the steps served from the shuttle, in topological order.
	CacheHits []string
	// Skipped lists the optional steps that failed, in topological order.
	Skipped  []string
	Duration time.Duration
}

// Output returns the dataset of the named terminal step.
func (r *Result) Output(name string) (*model.Dataset, bool) {
	ds, ok := r.Outputs[name]

	return ds, ok
}

func (r *run) result(duration time.Duration) *Result {
	res := &Result{
		RunID:    r.id,
		Pipeline: r.p.name,
		Outputs:  make(map[string]*model.Dataset, len(r.p.terminals)),
		Duration: duration,
	}

	for _, idx := range r.p.terminals {
		if s := r.slots[idx]; s.state == completed {
			res.Outputs[r.p.steps[idx].Name] = s.ds
		}
	}

	for _, idx := range r.p.order {
		s := r.slots[idx]
		name := r.p.steps[idx].Name

		if s.ran {
			res.Executed = append(res.Executed, name)
		}

		if s.cached {
			res.CacheHits = append(res.CacheHits, name)
		}

		if s.state == skipped {
			res.Skipped = append(res.Skipped, name)
		}
	}

	return res
}
