package pipeline

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

type slotState int

const (
	pending slotState = iota
	completed
	failed
	skipped
)

// slot is the execution state of one step. The coordinator writes it once the worker handed the
// result over, and dependents read it after being dispatched, so channels order every access.
type slot struct {
	state  slotState
	ds     *model.Dataset
	cached bool
	ran    bool
	err    error
}

type stepResult struct {
	idx    int
	ds     *model.Dataset
	cached bool
	ran    bool
	err    error
}

type run struct {
	loom     *Loom
	p        *Pipeline
	id       string
	settings model.Settings
	inputs   map[string]any
	logger   *slog.Logger
	slots    []slot
}

func newRun(l *Loom, p *Pipeline, settings model.Settings, inputs map[string]any) *run {
	id := newRunID()

	return &run{
		loom:     l,
		p:        p,
		id:       id,
		settings: settings,
		inputs:   inputs,
		logger:   l.logger.With(slog.String("pipeline", p.name), slog.String("run_id", id)),
		slots:    make([]slot, len(p.steps)),
	}
}

// record stores the result of a step and reports whether the run must stop.
func (r *run) record(res stepResult) bool {
	s := &r.slots[res.idx]
	s.cached = res.cached
	s.ran = res.ran

	if res.err == nil {
		s.state = completed
		s.ds = res.ds

		return false
	}

	s.err = res.err
	step := r.p.steps[res.idx]

	if step.Optional {
		s.state = skipped
		r.logger.Warn("optional step failed, dependents run without it",
			slog.String("step", step.Name),
			slog.String("error", res.err.Error()),
		)

		return false
	}

	s.state = failed

	return true
}

// interruption maps the end of the caller context to a run error.
func interruption(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrRunTimeout
	}

	return ErrCanceled
}

// outcome builds the error of a run from the slots. Failures are reported in topological order.
// An interruption that left no step outstanding is not an error.
func (r *run) outcome(interrupt error) error {
	var (
		failures    []int
		outstanding []string
	)

	for _, idx := range r.p.order {
		switch r.slots[idx].state {
		case failed:
			failures = append(failures, idx)
		case pending:
			outstanding = append(outstanding, r.p.steps[idx].Name)
		}
	}

	errs := make([]error, len(failures))
	for i, idx := range failures {
		errs[i] = r.slots[idx].err
	}

	if interrupt != nil && len(outstanding) > 0 {
		return &PipelineError{Err: interrupt, Suppressed: errs, Outstanding: outstanding}
	}

	if len(failures) > 0 {
		return &PipelineError{Step: r.p.steps[failures[0]].Name, Err: errs[0], Suppressed: errs[1:]}
	}

	return nil
}

// inputsFor gathers the datasets of the dependencies of idx, skipped ones left out.
func (r *run) inputsFor(idx int) (model.Inputs, []depIdentity) {
	deps := r.p.deps[idx]
	in := model.Inputs{
		Names:    make([]string, 0, len(deps)),
		Datasets: make(map[string]*model.Dataset, len(deps)),
		Run:      r.inputs,
	}
	ids := make([]depIdentity, 0, len(deps))

	for _, dep := range deps {
		name := r.p.steps[dep].Name
		s := r.slots[dep]

		if s.state == skipped {
			ids = append(ids, depIdentity{Name: name, Skipped: true})

			continue
		}

		in.Names = append(in.Names, name)
		in.Datasets[name] = s.ds
		ids = append(ids, depIdentity{Name: name, Fingerprint: s.ds.Fingerprint})
	}

	return in, ids
}
