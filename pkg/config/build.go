package config

import (
	"io"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/askiada/go-loom/pkg/pipeline/model"
	"github.com/askiada/go-loom/pkg/shuttle"
	"github.com/askiada/go-loom/pkg/source"
)

// Spec converts the document into a pipeline spec.
func (d *Document) Spec() model.Spec {
	spec := model.Spec{
		Name:  d.Name,
		Steps: make([]model.StepInfo, len(d.Steps)),
		Settings: model.Settings{
			Mode:        model.ExecutionMode(d.Mode),
			Workers:     d.Workers,
			DefaultTTL:  d.DefaultTTL.Std(),
			RunTimeout:  d.RunTimeout.Std(),
			EventsTopic: d.EventsTopic,
		},
	}

	for i, step := range d.Steps {
		op := step.Transform
		if model.StepKind(step.Kind) == model.SourceStepKind {
			op = step.Source
		}

		spec.Steps[i] = model.StepInfo{
			Name:      step.Name,
			Kind:      model.StepKind(step.Kind),
			DependsOn: step.DependsOn,
			Operation: op,
			Query:     step.Query,
			Params:    step.Params,
			Cache:     model.CachePolicy{Enabled: step.Cache.Enabled, TTL: step.Cache.TTL.Std()},
			Optional:  step.Optional,
			Timeout:   step.Timeout.Std(),
			Priority:  step.Priority,
		}
	}

	return spec
}

// Adapters builds the adapters declared by the document. The returned closer releases the
// databases opened by kv sources.
func (d *Document) Adapters(logger *slog.Logger) (*source.Registry, io.Closer, error) {
	reg := source.NewRegistry()
	dbs := closers{}

	for _, src := range d.Sources {
		adapter, closer, err := newAdapter(src, logger)
		if err != nil {
			_ = dbs.Close()

			return nil, nil, errors.Wrapf(err, "unable to create source %s", src.Name)
		}

		if closer != nil {
			dbs = append(dbs, closer)
		}

		if err := reg.Register(src.Name, adapter); err != nil {
			_ = dbs.Close()

			return nil, nil, err
		}
	}

	return reg, dbs, nil
}

func newAdapter(src Source, logger *slog.Logger) (source.Adapter, io.Closer, error) {
	switch src.Kind {
	case "static":
		rows := make([]model.Row, len(src.Rows))
		for i, row := range src.Rows {
			rows[i] = model.Row(row)
		}

		return source.NewStatic(rows...), nil, nil
	case "http":
		adapter, err := source.NewHTTP(source.HTTPConfig{
			BaseURL:       src.URL,
			Headers:       src.Headers,
			RateLimit:     src.RateLimit,
			Burst:         src.Burst,
			Timeout:       src.Timeout.Std(),
			RecordsPath:   src.RecordsPath,
			MaxRetries:    src.MaxRetries,
			RetryInterval: src.RetryInterval.Std(),
		})
		if err != nil {
			return nil, nil, err
		}

		return adapter, nil, nil
	case "kv":
		db, err := shuttle.OpenBadgerDB(shuttle.BadgerConfig{Path: src.Path, Logger: logger})
		if err != nil {
			return nil, nil, err
		}

		return source.NewKV(db), dbCloser{db}, nil
	default:
		return nil, nil, errors.Errorf("unknown source kind %q", src.Kind)
	}
}

// OpenShuttle opens the shuttle selected by the cache section. Memory is the default.
func (d *Document) OpenShuttle(logger *slog.Logger) (shuttle.Store, error) {
	switch d.Cache.Backend {
	case "", "memory":
		return shuttle.NewMemory(shuttle.WithSweepInterval(d.Cache.SweepInterval.Std())), nil
	case "badger":
		store, err := shuttle.NewBadger(shuttle.BadgerConfig{
			Path:           d.Cache.Path,
			Logger:         logger,
			GCInterval:     d.Cache.GCInterval.Std(),
			GCDiscardRatio: d.Cache.GCDiscardRatio,
		})
		if err != nil {
			return nil, errors.Wrap(err, "unable to open badger shuttle")
		}

		return store, nil
	default:
		return nil, errors.Errorf("unknown cache backend %q", d.Cache.Backend)
	}
}

type dbCloser struct {
	db *badger.DB
}

func (c dbCloser) Close() error {
	return c.db.Close()
}

type closers []io.Closer

func (c closers) Close() error {
	var first error

	for _, closer := range c {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}
