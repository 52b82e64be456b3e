package model

import "time"

// StepKind is the kind of work a step performs.
type StepKind string

const (
	// SourceStepKind fetches a dataset from a registered source adapter.
	SourceStepKind StepKind = "source"
	// TransformStepKind derives a dataset from its upstream datasets.
	TransformStepKind StepKind = "transform"
	// AggregateStepKind combines several upstream datasets into one.
	AggregateStepKind StepKind = "aggregate"
)

// Valid reports whether k is a known step kind.
func (k StepKind) Valid() bool {
	switch k {
	case SourceStepKind, TransformStepKind, AggregateStepKind:
		return true
	}

	return false
}

// CachePolicy controls whether the output of a step is stored in the shuttle.
type CachePolicy struct {
	Enabled bool
	// TTL is the lifetime of the cached dataset. Zero means the pipeline default.
	TTL time.Duration
}

// StepInfo is the declaration of a single step.
type StepInfo struct {
	Name      string
	Kind      StepKind
	DependsOn []string
	// Operation is the adapter name for source steps and the transform name otherwise.
	Operation string
	// Query is forwarded verbatim to the source adapter.
	Query    string
	Params   map[string]any
	Cache    CachePolicy
	Optional bool
	Timeout  time.Duration
	// Priority orders ready steps in parallel mode, higher first.
	Priority float64
}

// ExecutionMode selects how the loom walks the pipeline.
type ExecutionMode string

const (
	SequentialMode ExecutionMode = "sequential"
	ParallelMode   ExecutionMode = "parallel"
)

// Settings holds the global configuration of a pipeline.
type Settings struct {
	Mode ExecutionMode
	// Workers bounds parallel execution. Zero lets the loom size the pool from the graph.
	Workers    int
	DefaultTTL time.Duration
	RunTimeout time.Duration
	// EventsTopic is the shuttle topic step events are published to. Concurrent runs of a
	// loom share the topic generation; it is closed when the last of them finishes.
	EventsTopic string
}

// Spec is the raw, not yet validated, pipeline document.
type Spec struct {
	Name     string
	Steps    []StepInfo
	Settings Settings
}
