package measure

import (
	"sync"
	"sync/atomic"
)

type DefaultMeasure struct {
	mu       sync.RWMutex
	Steps    map[string]Metric
	inFlight atomic.Int64
	peak     atomic.Int64
}

func NewDefaultMeasure() *DefaultMeasure {
	return &DefaultMeasure{
		Steps: make(map[string]Metric),
	}
}

// AddMetric returns the metric of the named step, creating it on first use.
func (m *DefaultMeasure) AddMetric(name string) Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mt, ok := m.Steps[name]; ok {
		return mt
	}

	mt := newDefaultMetric()
	m.Steps[name] = mt

	return mt
}

// GetMetric returns the metric of the named step or nil.
func (m *DefaultMeasure) GetMetric(name string) Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.Steps[name]
}

func (m *DefaultMeasure) AllMetrics() map[string]Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Metric, len(m.Steps))
	for name, mt := range m.Steps {
		out[name] = mt
	}

	return out
}

func (m *DefaultMeasure) StepStarted() {
	current := m.inFlight.Add(1)
	for {
		peak := m.peak.Load()
		if current <= peak || m.peak.CompareAndSwap(peak, current) {
			return
		}
	}
}

func (m *DefaultMeasure) StepFinished() {
	m.inFlight.Add(-1)
}

// MaxConcurrency returns the highest number of steps seen in flight at once.
func (m *DefaultMeasure) MaxConcurrency() int64 {
	return m.peak.Load()
}

var _ Measure = (*DefaultMeasure)(nil)
