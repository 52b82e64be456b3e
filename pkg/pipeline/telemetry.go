package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("go-loom")
	meter  = otel.Meter("go-loom")
)

type telemetry struct {
	once        sync.Once
	stepLatency metric.Float64Histogram
	stepSuccess metric.Int64Counter
	stepFailure metric.Int64Counter
	cacheHits   metric.Int64Counter
	activeSteps metric.Int64UpDownCounter
	runLatency  metric.Float64Histogram
}

// init creates the instruments on first use. A failing instrument is left nil.
func (t *telemetry) init(logger *slog.Logger) {
	t.once.Do(func() {
		var failed []string

		var err error
		t.stepLatency, err = meter.Float64Histogram("loom_step_duration_seconds",
			metric.WithDescription("Time spent executing each step"),
			metric.WithUnit("s"),
		)
		if err != nil {
			failed = append(failed, "step_duration: "+err.Error())
		}

		t.stepSuccess, err = meter.Int64Counter("loom_step_success_total",
			metric.WithDescription("Number of successful step executions"),
		)
		if err != nil {
			failed = append(failed, "step_success: "+err.Error())
		}

		t.stepFailure, err = meter.Int64Counter("loom_step_failure_total",
			metric.WithDescription("Number of failed step executions"),
		)
		if err != nil {
			failed = append(failed, "step_failure: "+err.Error())
		}

		t.cacheHits, err = meter.Int64Counter("loom_cache_hits_total",
			metric.WithDescription("Number of steps served from the shuttle"),
		)
		if err != nil {
			failed = append(failed, "cache_hits: "+err.Error())
		}

		t.activeSteps, err = meter.Int64UpDownCounter("loom_active_steps",
			metric.WithDescription("Number of steps currently executing"),
		)
		if err != nil {
			failed = append(failed, "active_steps: "+err.Error())
		}

		t.runLatency, err = meter.Float64Histogram("loom_run_duration_seconds",
			metric.WithDescription("Total run time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			failed = append(failed, "run_duration: "+err.Error())
		}

		if len(failed) > 0 {
			logger.Error("unable to create some loom instruments",
				slog.Int("failed_count", len(failed)),
				slog.Any("errors", failed),
			)
		}
	})
}

func (t *telemetry) stepStarted(ctx context.Context) func() {
	if t.activeSteps == nil {
		return func() {}
	}

	t.activeSteps.Add(ctx, 1)

	return func() { t.activeSteps.Add(ctx, -1) }
}

func (t *telemetry) stepFinished(ctx context.Context, step string, duration time.Duration, cached bool, err error) {
	attrs := metric.WithAttributes(attribute.String("step", step))

	if t.stepLatency != nil {
		t.stepLatency.Record(ctx, duration.Seconds(), attrs)
	}

	switch {
	case err != nil:
		if t.stepFailure != nil {
			t.stepFailure.Add(ctx, 1, attrs)
		}
	case cached:
		if t.cacheHits != nil {
			t.cacheHits.Add(ctx, 1, attrs)
		}
	default:
		if t.stepSuccess != nil {
			t.stepSuccess.Add(ctx, 1, attrs)
		}
	}
}

func (t *telemetry) runFinished(ctx context.Context, pipeline string, duration time.Duration) {
	if t.runLatency != nil {
		t.runLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("pipeline", pipeline)))
	}
}
