package pipeline

import (
	"log/slog"
	"time"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

// Option configures a Loom.
type Option func(l *Loom)

// WithMode overrides the execution mode of every pipeline run by the loom.
func WithMode(mode model.ExecutionMode) Option {
	return func(l *Loom) {
		l.mode = mode
	}
}

// WithWorkers overrides the size of the worker pool in parallel mode.
func WithWorkers(workers int) Option {
	return func(l *Loom) {
		l.workers = workers
	}
}

// WithRunTimeout overrides the run timeout of every pipeline run by the loom.
func WithRunTimeout(timeout time.Duration) Option {
	return func(l *Loom) {
		l.runTimeout = timeout
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loom) {
		l.logger = logger
	}
}

// WithPipelineOptions registers hooks called around every run.
// Hooks are called from the workers and must be safe for concurrent use.
func WithPipelineOptions(opts ...model.PipelineOption) Option {
	return func(l *Loom) {
		l.opts = append(l.opts, opts...)
	}
}
