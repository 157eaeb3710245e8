package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type Scheduler struct {
	executor    Executor
	concurrency int
	failFast    bool
}

func NewScheduler(executor Executor, concurrency int, failFast bool) (*Scheduler, error) {
	if executor == nil {
		return nil, errors.New("executor is nil")
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be >= 1, got %d", concurrency)
	}
	return &Scheduler{executor: executor, concurrency: concurrency, failFast: failFast}, nil
}

// Execute streams per-instance completion results, honoring the needs graph:
// a job's instances start only after every needed job has finished, whatever
// those jobs' outcomes were. The job's own `if:` condition decides whether it
// still runs after a needed job failed; the scheduler only orders.
//
// Channel semantics:
//   - In the normal (non-canceled) case, exactly one InstanceResult is sent
//     per planned instance. Fail-fast emits synthetic skipped results for
//     instances it never started.
//   - On context cancellation, the scheduler stops promptly; it may emit
//     fewer results than planned.
//   - The results channel and error channel are both closed reliably.
//   - The error channel carries fatal errors / cancellation signals only;
//     instance failures travel as InstanceResult values.
func (s *Scheduler) Execute(ctx context.Context, plan *RunPlan) (<-chan InstanceResult, <-chan error) {
	resultsCh := make(chan InstanceResult)
	errCh := make(chan error, 1)

	go func() {
		defer close(resultsCh)
		defer close(errCh)

		trySendErr := func(err error) {
			if err == nil {
				return
			}
			select {
			case errCh <- err:
			default:
			}
		}

		if ctx == nil {
			trySendErr(errors.New("context is nil"))
			return
		}
		if s == nil {
			trySendErr(errors.New("scheduler is nil"))
			return
		}
		if plan == nil {
			trySendErr(errors.New("run plan is nil"))
			return
		}
		if plan.ByJob == nil {
			trySendErr(errors.New("run plan is not initialized (ByJob is nil); use BuildPlan"))
			return
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		total := len(plan.Instances)

		// Completion channel is buffered for every instance so in-flight
		// workers never block after an early exit.
		completed := make(chan InstanceResult, total)
		sem := make(chan struct{}, s.concurrency)
		var wg sync.WaitGroup
		defer wg.Wait()

		jobSems := make(map[string]chan struct{})
		for jobID, instances := range plan.ByJob {
			job := instances[0].Job
			if job.Strategy != nil && job.Strategy.MaxParallel > 0 {
				jobSems[jobID] = make(chan struct{}, job.Strategy.MaxParallel)
			}
		}

		finished := make(map[string]string)               // job ID -> result
		collected := make(map[string][]InstanceResult)    // job ID -> results so far
		dispatched := make(map[string]bool)               // job ID -> instances started
		needsMet := func(jobID string) bool {
			for _, need := range plan.ByJob[jobID][0].Job.Needs {
				if _, ok := finished[need]; !ok {
					return false
				}
			}
			return true
		}

		needsSnapshot := func() map[string]string {
			snap := make(map[string]string, len(finished))
			for k, v := range finished {
				snap[k] = v
			}
			return snap
		}

		dispatchJob := func(jobID string) int {
			dispatched[jobID] = true
			needs := needsSnapshot()
			jobSem := jobSems[jobID]
			for _, inst := range plan.ByJob[jobID] {
				wg.Add(1)
				go func(inst *JobInstance) {
					defer wg.Done()

					select {
					case sem <- struct{}{}:
					case <-runCtx.Done():
						return
					}
					defer func() { <-sem }()

					if jobSem != nil {
						select {
						case jobSem <- struct{}{}:
						case <-runCtx.Done():
							return
						}
						defer func() { <-jobSem }()
					}

					res := s.executor.Execute(runCtx, inst, ExecEnv{
						RunID:    plan.RunID,
						Workflow: plan.Workflow,
						Needs:    needs,
					})
					select {
					case completed <- res:
					case <-runCtx.Done():
					}
				}(inst)
			}
			return len(plan.ByJob[jobID])
		}

		// dispatchReady starts every job whose needs are all finished and
		// returns how many instances it launched.
		dispatchReady := func() int {
			started := 0
			for jobID := range plan.ByJob {
				if dispatched[jobID] {
					continue
				}
				if needsMet(jobID) {
					started += dispatchJob(jobID)
				}
			}
			return started
		}

		// skipRemaining marks every not-yet-dispatched job as skipped, emits
		// a synthetic result per instance, and returns how many it emitted.
		skipRemaining := func(reason string) int {
			emitted := 0
			for jobID := range plan.ByJob {
				if dispatched[jobID] {
					continue
				}
				dispatched[jobID] = true
				finished[jobID] = StatusSkipped
				for _, inst := range plan.ByJob[jobID] {
					res := InstanceResult{
						InstanceID: inst.ID,
						JobID:      inst.JobID,
						Status:     StatusSkipped,
						Message:    reason,
					}
					select {
					case resultsCh <- res:
						emitted++
					case <-runCtx.Done():
						return emitted
					}
				}
			}
			return emitted
		}

		inFlight := dispatchReady()
		done := 0
		failFastTriggered := false

		for done < total {
			if inFlight == 0 {
				// Every dispatched instance completed yet jobs remain: the
				// needs graph cannot make progress.
				trySendErr(fmt.Errorf("scheduler stalled with %d of %d instances finished", done, total))
				return
			}

			var res InstanceResult
			select {
			case res = <-completed:
			case <-runCtx.Done():
				trySendErr(ctx.Err())
				return
			}
			inFlight--
			done++

			select {
			case resultsCh <- res:
			case <-runCtx.Done():
				trySendErr(ctx.Err())
				return
			}

			collected[res.JobID] = append(collected[res.JobID], res)
			if len(collected[res.JobID]) == len(plan.ByJob[res.JobID]) {
				finished[res.JobID] = jobResult(collected[res.JobID])
			}

			if s.failFast && res.Status == StatusFailure && !failFastTriggered {
				failFastTriggered = true
				done += skipRemaining(fmt.Sprintf("skipped: fail-fast after %s failed", res.InstanceID))
				cancel()
				continue
			}

			if !failFastTriggered {
				inFlight += dispatchReady()
			}
		}

		trySendErr(ctx.Err())
	}()

	return resultsCh, errCh
}
