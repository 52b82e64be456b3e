package drawer

import (
	"time"

	"github.com/askiada/go-loom/pkg/pipeline/measure"
)

// Drawer is an interface that defines the methods for drawing a pipeline.
type Drawer interface {
	// AddStep adds a step to the pipeline drawer. Adding a step twice is a no-op.
	AddStep(stepName string, attributes map[string]string) error
	// AddLink adds a link between parent and children steps. Adding a link twice is a no-op.
	AddLink(parentStepName, childrenStepName string) error
	// LinkLeaves links every step without children to the named step.
	LinkLeaves(stepName string) error
	// Draw creates a file with the pipeline graph.
	Draw() error
	// SetTotalTime sets the total time for the step.
	SetTotalTime(stepName string, totalTime time.Duration) error
	// AddMeasure adds a measure to the pipeline drawer.
	AddMeasure(measure measure.Measure) error
}
