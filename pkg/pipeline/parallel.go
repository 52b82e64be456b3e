package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// parallel runs the steps on a fixed pool of workers.
//
// The coordinator owns the in-degree counters and the ready queue. Workers only execute the step
// they were handed and send the result back. On failure or cancellation nothing new is
// dispatched and the coordinator waits for the steps in flight.
func (r *run) parallel(ctx, runCtx context.Context, workers int) error {
	steps := r.p.steps
	indegree := make([]int, len(steps))
	ready := newReadyQueue(func(a, b int) bool {
		if steps[a].Priority != steps[b].Priority {
			return steps[a].Priority > steps[b].Priority
		}

		return r.p.position[a] < r.p.position[b]
	})

	for i := range steps {
		indegree[i] = len(r.p.deps[i])
		if indegree[i] == 0 {
			ready.push(i)
		}
	}

	jobs := make(chan int)
	results := make(chan stepResult, workers)

	var grp errgroup.Group
	for w := 0; w < workers; w++ {
		grp.Go(func() error {
			for idx := range jobs {
				results <- r.execute(runCtx, idx)
			}

			return nil
		})
	}

	var (
		inFlight  int
		stopping  bool
		interrupt error
		ctxDone   = ctx.Done()
		runDone   = runCtx.Done()
	)

	for {
		if !stopping && (ctx.Err() != nil || runCtx.Err() != nil) {
			stopping = true
			if runCtx.Err() != nil {
				interrupt = ErrRunTimeout
			} else {
				interrupt = interruption(ctx)
			}
		}

		var (
			send chan int
			next int
		)

		if !stopping && inFlight < workers && ready.Len() > 0 {
			send = jobs
			next = ready.peek()
		}

		if send == nil && inFlight == 0 {
			break
		}

		select {
		case send <- next:
			ready.pop()
			inFlight++
		case res := <-results:
			inFlight--

			if res.err != nil && runCtx.Err() != nil {
				// aborted by the run deadline, the step stays outstanding
				stopping = true
				interrupt = ErrRunTimeout

				continue
			}

			if r.record(res) {
				stopping = true

				continue
			}

			for _, dependent := range r.p.dependents[res.idx] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					ready.push(dependent)
				}
			}
		case <-ctxDone:
			ctxDone = nil
			stopping = true
			if interrupt == nil {
				interrupt = interruption(ctx)
			}
		case <-runDone:
			runDone = nil
			stopping = true
			interrupt = ErrRunTimeout
		}
	}

	close(jobs)
	_ = grp.Wait()

	return r.outcome(interrupt)
}
