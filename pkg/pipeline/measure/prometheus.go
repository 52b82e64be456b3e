package measure

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

const (
	statusExecuted = "executed"
	statusCached   = "cached"
	statusFailed   = "failed"
)

type pipelinePrometheus struct {
	reg         prometheus.Registerer
	steps       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	runs        prometheus.Counter
	runDuration prometheus.Histogram
}

// PipelinePrometheus exports step counters, step durations and the number of steps in flight
// to reg. Collectors already registered by another loom are shared.
func PipelinePrometheus(reg prometheus.Registerer) model.PipelineOption {
	return &pipelinePrometheus{
		reg: reg,
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "steps_total",
			Help:      "Number of finished steps by status",
		}, []string{"step", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "loom",
			Name:      "step_execution_seconds",
			Help:      "Duration of the step operations",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"step"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "loom",
			Name:      "steps_in_flight",
			Help:      "Number of steps currently running",
		}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "runs_total",
			Help:      "Number of successful runs",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "loom",
			Name:      "run_seconds",
			Help:      "Duration of the successful runs",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}

	return c, errors.Wrap(err, "unable to register collector")
}

func (pp *pipelinePrometheus) New() error {
	var err error

	if pp.steps, err = register(pp.reg, pp.steps); err != nil {
		return err
	}

	if pp.duration, err = register(pp.reg, pp.duration); err != nil {
		return err
	}

	if pp.inFlight, err = register(pp.reg, pp.inFlight); err != nil {
		return err
	}

	if pp.runs, err = register(pp.reg, pp.runs); err != nil {
		return err
	}

	if pp.runDuration, err = register(pp.reg, pp.runDuration); err != nil {
		return err
	}

	return nil
}

func (pp *pipelinePrometheus) PrepareStep(*model.StepInfo) error {
	return nil
}

func (pp *pipelinePrometheus) OnStepStart(*model.StepInfo) error {
	pp.inFlight.Inc()

	return nil
}

func (pp *pipelinePrometheus) OnStepOutput(step *model.StepInfo, outcome model.StepOutcome) error {
	pp.inFlight.Dec()

	switch {
	case outcome.Err != nil:
		pp.steps.WithLabelValues(step.Name, statusFailed).Inc()
	case outcome.Cached:
		pp.steps.WithLabelValues(step.Name, statusCached).Inc()
	default:
		pp.steps.WithLabelValues(step.Name, statusExecuted).Inc()
		pp.duration.WithLabelValues(step.Name).Observe(outcome.Duration.Seconds())
	}

	return nil
}

func (pp *pipelinePrometheus) Finish(totalDuration time.Duration) error {
	pp.runs.Inc()
	pp.runDuration.Observe(totalDuration.Seconds())

	return nil
}
