package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

// execute runs a single step: cache lookup, operation, cache store, hooks and events.
func (r *run) execute(ctx context.Context, idx int) stepResult {
	step := cloneStep(r.p.steps[idx])

	ctx, span := tracer.Start(ctx, "loom.Step",
		trace.WithAttributes(
			attribute.String("loom.step", step.Name),
			attribute.String("loom.kind", string(step.Kind)),
			attribute.StringSlice("loom.dependencies", step.DependsOn),
		),
	)
	defer span.End()

	done := r.loom.telemetry.stepStarted(ctx)
	defer done()

	r.hook(step.Name, func(opt model.PipelineOption) error { return opt.OnStepStart(&step) })

	start := time.Now()
	in, deps := r.inputsFor(idx)
	res := r.produce(ctx, idx, in, deps)
	duration := time.Since(start)

	r.loom.telemetry.stepFinished(ctx, step.Name, duration, res.cached, res.err)

	outcome := model.StepOutcome{Duration: duration, Cached: res.cached, Rows: res.ds.Len(), Err: res.err}
	r.hook(step.Name, func(opt model.PipelineOption) error { return opt.OnStepOutput(&step, outcome) })
	r.publishStep(ctx, step, outcome)

	switch {
	case res.err != nil:
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
		r.logger.Error("step failed",
			slog.String("step", step.Name),
			slog.Duration("duration", duration),
			slog.String("error", res.err.Error()),
		)
	case res.cached:
		span.SetStatus(codes.Ok, "")
		r.logger.Debug("step served from cache",
			slog.String("step", step.Name),
			slog.Duration("duration", duration),
			slog.Bool("cached", true),
		)
	default:
		span.SetStatus(codes.Ok, "")
		r.logger.Info("step completed",
			slog.String("step", step.Name),
			slog.Duration("duration", duration),
			slog.Int("rows", res.ds.Len()),
			slog.Bool("cached", false),
		)
	}

	return res
}

func (r *run) hook(step string, fn func(opt model.PipelineOption) error) {
	for _, opt := range r.loom.opts {
		if err := fn(opt); err != nil {
			r.logger.Warn("pipeline option failed", slog.String("step", step), slog.String("error", err.Error()))
		}
	}
}

// produce returns the dataset of a step, from the shuttle when its cache policy allows it.
// Identical computations in flight on the same loom are run once.
func (r *run) produce(ctx context.Context, idx int, in model.Inputs, deps []depIdentity) stepResult {
	step := r.p.steps[idx]
	res := stepResult{idx: idx}

	if !step.Cache.Enabled {
		res.ds, res.err = r.invoke(ctx, idx, in)
		res.ran = true

		return res
	}

	key, err := cacheKey(step, r.inputs, deps)
	if err != nil {
		r.logger.Warn("unable to fingerprint step, cache bypassed", slog.String("step", step.Name), slog.String("error", err.Error()))
		res.ds, res.err = r.invoke(ctx, idx, in)
		res.ran = true

		return res
	}

	if ds, ok := r.lookup(ctx, step.Name, key); ok {
		res.ds, res.cached = ds, true

		return res
	}

	ran := false
	v, err, shared := r.loom.flight.Do(key, func() (any, error) {
		if ds, ok := r.lookup(ctx, step.Name, key); ok {
			return ds, nil
		}

		ran = true
		ds, err := r.invoke(ctx, idx, in)
		if err != nil {
			return nil, err
		}

		r.store(ctx, idx, key, ds)

		return ds, nil
	})

	if err != nil && shared && !ran {
		// the failure belongs to another run, compute it here
		ran = true
		v, err = r.invoke(ctx, idx, in)
		if err == nil {
			r.store(ctx, idx, key, v.(*model.Dataset))
		}
	}

	res.ran = ran
	res.cached = !ran && err == nil
	res.err = err
	if err == nil {
		res.ds = v.(*model.Dataset)
	}

	return res
}

// invoke runs the operation of a step under its timeout and stamps the metadata of its output.
func (r *run) invoke(ctx context.Context, idx int, in model.Inputs) (*model.Dataset, error) {
	step := r.p.steps[idx]

	opCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	ds, err := r.p.ops[idx].Execute(opCtx, in)
	if err != nil {
		class := classify(step.Kind)
		if step.Timeout > 0 && ctx.Err() == nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			class = ErrStepTimeout
		}

		return nil, &StepError{Step: step.Name, Kind: step.Kind, Class: class, Err: err}
	}

	if ds == nil {
		ds = model.NewDataset()
	}

	// the operation may return a dataset it does not own, stamp a copy
	out := *ds
	out.Step = step.Name
	out.CreatedAt = time.Now()
	out.SizeHint = len(out.Rows)

	out.Fingerprint, err = contentHash(out.Rows)
	if err != nil {
		r.logger.Warn("unable to fingerprint dataset, dependents will not be cached",
			slog.String("step", step.Name),
			slog.String("error", err.Error()),
		)
	}

	return &out, nil
}

func (r *run) lookup(ctx context.Context, step, key string) (*model.Dataset, bool) {
	ds, ok, err := r.loom.shuttle.Get(ctx, key)
	if err != nil {
		r.logger.Warn("cache lookup failed, treated as a miss",
			slog.String("step", step),
			slog.String("error", errors.Wrap(ErrCache, err.Error()).Error()),
		)

		return nil, false
	}

	if !ok || ds == nil {
		return nil, false
	}

	return ds, true
}

func (r *run) store(ctx context.Context, idx int, key string, ds *model.Dataset) {
	err := r.loom.shuttle.Put(ctx, key, ds, r.p.ttl(idx))
	if err != nil {
		r.logger.Warn("cache store failed",
			slog.String("step", r.p.steps[idx].Name),
			slog.String("error", errors.Wrap(ErrCache, err.Error()).Error()),
		)
	}
}
