package measure

import "time"

// RunMetric is the name of the metric holding the total duration of the runs.
const RunMetric = "end"

type Measure interface {
	AddMetric(name string) Metric
	GetMetric(name string) Metric
	AllMetrics() map[string]Metric
	// StepStarted and StepFinished track the number of steps in flight.
	StepStarted()
	StepFinished()
	MaxConcurrency() int64
}

type Metric interface {
	AddDuration(elapsed time.Duration)
	AddCacheHit()
	AddFailure()
	// AddTransportDuration records the time between the end of a dependency and the start of the step.
	AddTransportDuration(inputStepName string, elapsed time.Duration)
	AVGDuration() time.Duration
	AVGTransportDuration() map[string]*TransportInfo
	SetTotalDuration(endDuration time.Duration)
	GetTotalDuration() time.Duration
	AllTransports() map[string]*TransportInfo
	Executions() int64
	CacheHits() int64
	Failures() int64
}
