package pipeline

import "context"

// sequential runs the steps one after the other in topological order.
func (r *run) sequential(ctx, runCtx context.Context) error {
	for _, idx := range r.p.order {
		if ctx.Err() != nil {
			return r.outcome(interruption(ctx))
		}

		if runCtx.Err() != nil {
			return r.outcome(ErrRunTimeout)
		}

		res := r.execute(runCtx, idx)
		if res.err != nil && runCtx.Err() != nil {
			// aborted by the run deadline, the step stays outstanding
			return r.outcome(ErrRunTimeout)
		}

		if r.record(res) {
			return r.outcome(nil)
		}
	}

	return nil
}
