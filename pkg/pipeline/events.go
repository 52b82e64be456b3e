package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/askiada/go-loom/pkg/pipeline/model"
	"github.com/askiada/go-loom/pkg/shuttle"
)

const (
	StatusCompleted = "completed"
	StatusCached    = "cached"
	StatusFailed    = "failed"
	StatusSucceeded = "succeeded"
)

// Event is the body of the messages published on the events topic of a pipeline.
// The last event of a run has no step.
type Event struct {
	RunID    string        `json:"run_id"`
	Pipeline string        `json:"pipeline"`
	Step     string        `json:"step,omitempty"`
	Status   string        `json:"status"`
	Rows     int           `json:"rows,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

func (r *run) publishStep(ctx context.Context, step model.StepInfo, outcome model.StepOutcome) {
	ev := Event{Step: step.Name, Rows: outcome.Rows, Duration: outcome.Duration}

	switch {
	case outcome.Err != nil:
		ev.Status = StatusFailed
		ev.Error = outcome.Err.Error()
	case outcome.Cached:
		ev.Status = StatusCached
	default:
		ev.Status = StatusCompleted
	}

	r.publish(ctx, ev)
}

// finished publishes the final event of the run. The last run of the loom publishing on the
// topic closes it, ending its subscriptions.
func (r *run) finished(ctx context.Context, duration time.Duration, err error) {
	if r.settings.EventsTopic == "" {
		return
	}

	ev := Event{Status: StatusSucceeded, Duration: duration}
	if err != nil {
		ev.Status = StatusFailed
		ev.Error = err.Error()
	}

	r.publish(ctx, ev)
	r.loom.releaseTopic(r.settings.EventsTopic)
}

func (r *run) publish(ctx context.Context, ev Event) {
	if r.settings.EventsTopic == "" {
		return
	}

	ev.RunID = r.id
	ev.Pipeline = r.p.name

	body, err := json.Marshal(ev)
	if err != nil {
		r.logger.Warn("unable to encode event", slog.String("error", err.Error()))

		return
	}

	msg := shuttle.Message{
		Headers: map[string]string{"run_id": r.id, "step": ev.Step, "status": ev.Status},
		Body:    body,
	}

	// published even when the caller gave up on the run
	err = r.loom.shuttle.Publish(context.WithoutCancel(ctx), r.settings.EventsTopic, msg)
	if err != nil {
		r.logger.Warn("unable to publish event", slog.String("step", ev.Step), slog.String("error", err.Error()))
	}
}
