package measure

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

type pipelineMeasure struct {
	Measure
	mu         sync.Mutex
	deps       map[string][]string
	finishedAt map[string]time.Time
}

func (pm *pipelineMeasure) New() error {
	pm.AddMetric(RunMetric)

	return nil
}

func (pm *pipelineMeasure) PrepareStep(step *model.StepInfo) error {
	pm.AddMetric(step.Name)

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.deps[step.Name] = append([]string(nil), step.DependsOn...)
	delete(pm.finishedAt, step.Name)

	return nil
}

func (pm *pipelineMeasure) OnStepStart(step *model.StepInfo) error {
	pm.StepStarted()

	mt := pm.GetMetric(step.Name)
	if mt == nil {
		return errors.Errorf("step %s was not prepared", step.Name)
	}

	now := time.Now()

	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, dep := range pm.deps[step.Name] {
		if end, ok := pm.finishedAt[dep]; ok {
			mt.AddTransportDuration(dep, now.Sub(end))
		}
	}

	return nil
}

func (pm *pipelineMeasure) OnStepOutput(step *model.StepInfo, outcome model.StepOutcome) error {
	pm.StepFinished()

	mt := pm.GetMetric(step.Name)
	if mt == nil {
		return errors.Errorf("step %s was not prepared", step.Name)
	}

	switch {
	case outcome.Err != nil:
		mt.AddFailure()
	case outcome.Cached:
		mt.AddCacheHit()
	default:
		mt.AddDuration(outcome.Duration)
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.finishedAt[step.Name] = time.Now()

	return nil
}

func (pm *pipelineMeasure) Finish(totalDuration time.Duration) error {
	pm.GetMetric(RunMetric).SetTotalDuration(totalDuration)

	return nil
}

// PipelineMeasure records the durations, cache hits and failures of every step into measure.
func PipelineMeasure(measure Measure) model.PipelineOption {
	return &pipelineMeasure{
		Measure:    measure,
		deps:       make(map[string][]string),
		finishedAt: make(map[string]time.Time),
	}
}
