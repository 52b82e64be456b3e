package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/askiada/go-loom/pkg/pipeline/model"
	"github.com/askiada/go-loom/pkg/shuttle"
)

// DefaultCacheTTL applies when neither the step nor the pipeline set a TTL.
const DefaultCacheTTL = 10 * time.Minute

// Loom runs pipelines. A loom can run several pipelines concurrently; runs sharing the
// shuttle compute an identical step only once at a time.
type Loom struct {
	shuttle    shuttle.Store
	logger     *slog.Logger
	mode       model.ExecutionMode
	workers    int
	runTimeout time.Duration
	opts       []model.PipelineOption

	flight    singleflight.Group
	telemetry telemetry

	// topics counts the runs publishing on each events topic.
	topicsMu sync.Mutex
	topics   map[string]int
}

// New creates a loom storing intermediate datasets in store.
func New(store shuttle.Store, opts ...Option) (*Loom, error) {
	if store == nil {
		return nil, ErrShuttleMustBeSet
	}

	l := &Loom{
		shuttle: store,
		logger:  slog.Default(),
		topics:  map[string]int{},
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.workers < 0 {
		return nil, errors.New("workers must not be negative")
	}

	for _, opt := range l.opts {
		err := opt.New()
		if err != nil {
			return nil, errors.Wrap(err, "unable to apply pipeline option")
		}
	}

	l.telemetry.init(l.logger)

	return l, nil
}

// Run executes p with the given run inputs and returns the datasets of its terminal steps.
//
// Canceling ctx stops the dispatch of new steps and lets the running ones finish. A deadline on
// ctx or the run timeout aborts the running steps.
func (l *Loom) Run(ctx context.Context, p *Pipeline, inputs map[string]any) (*Result, error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}

	start := time.Now()
	settings := l.settings(p)
	r := newRun(l, p, settings, inputs)

	ctx, span := tracer.Start(ctx, "loom.Run",
		trace.WithAttributes(
			attribute.String("loom.pipeline", p.name),
			attribute.String("loom.run_id", r.id),
			attribute.String("loom.mode", string(settings.Mode)),
			attribute.Int("loom.workers", settings.Workers),
			attribute.Int("loom.step_count", len(p.steps)),
		),
	)
	defer span.End()

	for _, idx := range p.order {
		step := cloneStep(p.steps[idx])
		for _, opt := range l.opts {
			err := opt.PrepareStep(&step)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to prepare step %s", step.Name)
			}
		}
	}

	l.acquireTopic(settings.EventsTopic)

	runCtx, cancel := stepContext(ctx, settings.RunTimeout)
	defer cancel()

	r.logger.Info("run started",
		slog.String("mode", string(settings.Mode)),
		slog.Int("workers", settings.Workers),
		slog.Int("steps", len(p.steps)),
	)

	var err error
	if settings.Mode == model.ParallelMode {
		err = r.parallel(ctx, runCtx, settings.Workers)
	} else {
		err = r.sequential(ctx, runCtx)
	}

	duration := time.Since(start)
	l.telemetry.runFinished(ctx, p.name, duration)
	r.finished(ctx, duration, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("run failed", slog.Duration("duration", duration), slog.String("error", err.Error()))

		return nil, err
	}

	for _, opt := range l.opts {
		err := opt.Finish(duration)
		if err != nil {
			return nil, errors.Wrap(err, "unable to finish pipeline option")
		}
	}

	span.SetStatus(codes.Ok, "")
	r.logger.Info("run finished", slog.Duration("duration", duration))

	return r.result(duration), nil
}

func (l *Loom) acquireTopic(topic string) {
	if topic == "" {
		return
	}

	l.topicsMu.Lock()
	defer l.topicsMu.Unlock()

	l.topics[topic]++
}

// releaseTopic closes the topic once the last run publishing on it is done. The lock is
// held while closing so a starting run never publishes into the generation being closed.
func (l *Loom) releaseTopic(topic string) {
	if topic == "" {
		return
	}

	l.topicsMu.Lock()
	defer l.topicsMu.Unlock()

	l.topics[topic]--
	if l.topics[topic] > 0 {
		return
	}

	delete(l.topics, topic)
	l.shuttle.CloseTopic(topic)
}

func (l *Loom) settings(p *Pipeline) model.Settings {
	s := p.settings

	if l.mode != "" {
		s.Mode = l.mode
	}

	if l.workers > 0 {
		s.Workers = l.workers
	}

	if l.runTimeout > 0 {
		s.RunTimeout = l.runTimeout
	}

	if s.Mode == model.ParallelMode && s.Workers == 0 {
		s.Workers = min(max(p.width, 1), runtime.GOMAXPROCS(0))
	}

	if s.Mode != model.ParallelMode {
		s.Workers = 1
	}

	return s
}

// stepContext detaches the steps from the cancellation of ctx while keeping its values and
// its deadline, bounded by timeout.
func stepContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx := context.WithoutCancel(ctx)
	cancels := []context.CancelFunc{}

	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
		cancels = append(cancels, cancel)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		cancels = append(cancels, cancel)
	}

	return runCtx, func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func newRunID() string {
	return uuid.NewString()
}
