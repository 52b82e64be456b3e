package measure_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-loom/pkg/pipeline/measure"
	"github.com/askiada/go-loom/pkg/pipeline/model"
)

func TestPipelinePrometheus(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	opt := measure.PipelinePrometheus(reg)
	require.NoError(t, opt.New())

	step := &model.StepInfo{Name: "fetch"}
	require.NoError(t, opt.PrepareStep(step))

	require.NoError(t, opt.OnStepStart(step))
	require.NoError(t, opt.OnStepOutput(step, model.StepOutcome{Duration: 5 * time.Millisecond}))
	require.NoError(t, opt.OnStepStart(step))
	require.NoError(t, opt.OnStepOutput(step, model.StepOutcome{Cached: true}))
	require.NoError(t, opt.OnStepStart(step))
	require.NoError(t, opt.OnStepOutput(step, model.StepOutcome{Err: errors.New("boom")}))
	require.NoError(t, opt.Finish(time.Second))

	families, err := reg.Gather()
	require.NoError(t, err)

	got := map[string]bool{}
	for _, family := range families {
		got[family.GetName()] = true
	}

	for _, name := range []string{
		"loom_steps_total",
		"loom_step_execution_seconds",
		"loom_steps_in_flight",
		"loom_runs_total",
		"loom_run_seconds",
	} {
		assert.True(t, got[name], name)
	}

	count, err := testutil.GatherAndCount(reg, "loom_steps_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = testutil.GatherAndCount(reg, "loom_step_execution_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPipelinePrometheusSharedRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	first := measure.PipelinePrometheus(reg)
	second := measure.PipelinePrometheus(reg)
	require.NoError(t, first.New())
	require.NoError(t, second.New())

	step := &model.StepInfo{Name: "fetch"}
	require.NoError(t, first.OnStepStart(step))
	require.NoError(t, first.OnStepOutput(step, model.StepOutcome{}))
	require.NoError(t, second.OnStepStart(step))
	require.NoError(t, second.OnStepOutput(step, model.StepOutcome{}))
	require.NoError(t, first.Finish(time.Second))
	require.NoError(t, second.Finish(time.Second))

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() == "loom_runs_total" {
			require.Len(t, family.GetMetric(), 1)
			assert.InDelta(t, 2, family.GetMetric()[0].GetCounter().GetValue(), 0)
		}
	}
}
