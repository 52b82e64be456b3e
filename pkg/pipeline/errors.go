package pipeline

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

var (
	ErrValidation        = errors.New("invalid pipeline")
	ErrEmptyPipeline     = errors.New("pipeline has no steps")
	ErrInvalidSettings   = errors.New("invalid settings")
	ErrInvalidStep       = errors.New("invalid step")
	ErrDuplicateStep     = errors.New("duplicate step")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrMissingDependency = errors.New("step must depend on at least one step")
	ErrCycle             = errors.New("dependency cycle")
	ErrNoTerminal        = errors.New("pipeline has no terminal step")
	ErrUnknownOperation  = errors.New("unknown operation")

	ErrAdapter   = errors.New("adapter failed")
	ErrTransform = errors.New("transform failed")
	ErrCache     = errors.New("cache failed")
	ErrTimeout   = errors.New("timeout")
	ErrCanceled  = errors.New("run canceled")

	ErrStepTimeout error = &timeoutError{msg: "step timed out"}
	ErrRunTimeout  error = &timeoutError{msg: "run timed out"}

	ErrPipelineMustBeSet = errors.New("p must be set")
	ErrShuttleMustBeSet  = errors.New("shuttle must be set")
	ErrResolverMustBeSet = errors.New("resolver must be set")
)

type timeoutError struct {
	msg string
}

func (e *timeoutError) Error() string { return e.msg }

func (e *timeoutError) Is(target error) bool { return target == ErrTimeout }

// ValidationError reports why a pipeline could not be loaded.
type ValidationError struct {
	// Step is empty when the violation is not about a single step.
	Step string
	// Cycle lists the members of a dependency cycle in declaration order.
	Cycle []string
	Err   error
}

func (e *ValidationError) Error() string {
	switch {
	case len(e.Cycle) > 0:
		return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Err, strings.Join(e.Cycle, " -> "))
	case e.Step != "":
		return fmt.Sprintf("%s: step %q: %s", ErrValidation, e.Step, e.Err)
	default:
		return fmt.Sprintf("%s: %s", ErrValidation, e.Err)
	}
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(step string, err error) *ValidationError {
	return &ValidationError{Step: step, Err: err}
}

// StepError is the failure of a single step.
type StepError struct {
	Step string
	Kind model.StepKind
	// Class is one of ErrAdapter, ErrTransform or ErrStepTimeout.
	Class error
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %s", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func (e *StepError) Is(target error) bool { return errors.Is(e.Class, target) }

// PipelineError is the failure of a run.
type PipelineError struct {
	// Step is the failing step with the lowest topological position. It is empty when the
	// run was canceled or timed out.
	Step string
	Err  error
	// Suppressed holds the failures of the other steps in flight.
	Suppressed []error
	// Outstanding lists the steps that were still running or waiting when the run ended.
	Outstanding []string
}

func (e *PipelineError) Error() string {
	var b strings.Builder

	b.WriteString(e.Err.Error())

	if len(e.Outstanding) > 0 {
		fmt.Fprintf(&b, " (outstanding: %s)", strings.Join(e.Outstanding, ", "))
	}

	if n := len(e.Suppressed); n > 0 {
		fmt.Fprintf(&b, " (and %d more failed)", n)
	}

	return b.String()
}

func (e *PipelineError) Unwrap() error { return e.Err }

func classify(kind model.StepKind) error {
	if kind == model.SourceStepKind {
		return ErrAdapter
	}

	return ErrTransform
}
