package drawer

import (
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-loom/pkg/pipeline/measure"
	"github.com/askiada/go-loom/pkg/pipeline/model"
)

const (
	StartStepName = "start"
	EndStepName   = measure.RunMetric
)

var shapes = map[model.StepKind]string{
	model.SourceStepKind:    "cylinder",
	model.TransformStepKind: "box",
	model.AggregateStepKind: "invhouse",
}

type pipelineDrawer struct {
	Drawer
	m measure.Measure
}

func (pd *pipelineDrawer) New() error {
	err := pd.AddStep(StartStepName, map[string]string{"shape": "circle"})
	if err != nil {
		return errors.Wrap(err, "unable to add start step to drawer")
	}

	err = pd.AddStep(EndStepName, map[string]string{"shape": "doublecircle"})
	if err != nil {
		return errors.Wrap(err, "unable to add end step to drawer")
	}

	return nil
}

func (pd *pipelineDrawer) PrepareStep(step *model.StepInfo) error {
	err := pd.AddStep(step.Name, map[string]string{"shape": shapes[step.Kind]})
	if err != nil {
		return err
	}

	if len(step.DependsOn) == 0 {
		return pd.AddLink(StartStepName, step.Name)
	}

	for _, parent := range step.DependsOn {
		err := pd.AddLink(parent, step.Name)
		if err != nil {
			return err
		}
	}

	return nil
}

func (pd *pipelineDrawer) OnStepStart(*model.StepInfo) error {
	return nil
}

func (pd *pipelineDrawer) OnStepOutput(*model.StepInfo, model.StepOutcome) error {
	return nil
}

func (pd *pipelineDrawer) Finish(totalDuration time.Duration) error {
	err := pd.LinkLeaves(EndStepName)
	if err != nil {
		return errors.Wrap(err, "unable to link leaves to end step")
	}

	err = pd.SetTotalTime(EndStepName, totalDuration)
	if err != nil {
		return errors.Wrap(err, "unable to set total time")
	}

	if pd.m != nil {
		err = pd.AddMeasure(pd.m)
		if err != nil {
			return errors.Wrap(err, "unable to add measure")
		}
	}

	err = pd.Draw()
	if err != nil {
		return errors.Wrap(err, "unable to draw pipeline")
	}

	return nil
}

// PipelineDrawer draws the pipeline once a run finished. The steps are labelled with the
// metrics of measure when it is set.
func PipelineDrawer(drawer Drawer, measure measure.Measure) model.PipelineOption {
	return &pipelineDrawer{drawer, measure}
}
