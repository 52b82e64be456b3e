package model

import "time"

// StepOutcome describes how a step execution ended.
type StepOutcome struct {
	Duration time.Duration
	Cached   bool
	Rows     int
	Err      error
}

// PipelineOption defines the interface for pipeline options.
type PipelineOption interface {
	// New initialises the pipeline option. It runs once, when the loom is created.
	New() error
	// PrepareStep runs before a run starts, once per step, in topological order.
	PrepareStep(step *StepInfo) error
	// OnStepStart runs when a worker picks the step up.
	OnStepStart(step *StepInfo) error
	// OnStepOutput runs when the step produced a dataset, hit the cache or failed.
	OnStepOutput(step *StepInfo, outcome StepOutcome) error
	// Finish runs after the run is finished.
	Finish(totalDuration time.Duration) error
}
