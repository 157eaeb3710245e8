package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/skarzi/matrixci/internal/artifact"
	"github.com/skarzi/matrixci/internal/cache"
	"github.com/skarzi/matrixci/internal/expr"
	"github.com/skarzi/matrixci/internal/output"
	"github.com/skarzi/matrixci/internal/workflow"
)

// ExecEnv carries run-scoped context into a single instance execution.
type ExecEnv struct {
	RunID    string
	Workflow *workflow.Workflow

	// Needs maps every already-finished job ID to its result.
	Needs map[string]string
}

// Executor runs one job instance to completion. It is the seam between the
// scheduler and real step execution.
type Executor interface {
	Execute(ctx context.Context, inst *JobInstance, env ExecEnv) InstanceResult
}

// LocalExecutor executes job instances on the local host: each instance gets
// its own workspace directory, steps run sequentially, and builtin steps are
// served by the run's cache and artifact stores.
type LocalExecutor struct {
	// SourceDir is the tree the checkout step copies from.
	SourceDir string

	// WorkRoot is where per-instance workspaces are created.
	WorkRoot string

	Cache     *cache.Store
	Artifacts *artifact.Store

	Secrets map[string]string

	// Repo, Commit and Branch identify the run for coverage uploads.
	Repo   string
	Commit string
	Branch string

	Verbose bool

	// Emit receives lifecycle events; nil disables event emission.
	Emit func(output.Event)

	// runCommand is a test seam for shell step execution.
	runCommand func(ctx context.Context, workDir, script string, env []string) (string, error)
}

func (e *LocalExecutor) emit(ev output.Event) {
	if e.Emit != nil {
		e.Emit(ev)
	}
}

func (e *LocalExecutor) Execute(ctx context.Context, inst *JobInstance, env ExecEnv) InstanceResult {
	started := time.Now()
	res := InstanceResult{InstanceID: inst.ID, JobID: inst.JobID}

	e.emit(output.Event{Type: "job.started", Job: inst.ID})

	finish := func(status, message string) InstanceResult {
		res.Status = status
		res.Message = message
		res.Duration = time.Since(started)
		return res
	}

	needs := neededResults(inst.Job, env.Needs)
	allNeedsOK := true
	for _, result := range needs {
		if result != StatusSuccess {
			allNeedsOK = false
		}
	}

	ectx := &expr.Context{
		Secrets: e.Secrets,
		Needs:   needs,
		Steps:   make(map[string]map[string]string),

		AllNeedsSucceeded: allNeedsOK,
	}
	if inst.Cell != nil {
		ectx.Matrix = inst.Cell.Values
	}

	mergedEnv, err := interpolatedEnv(ectx, env.Workflow.Env, inst.Job.Env)
	if err != nil {
		return finish(StatusFailure, fmt.Sprintf("job env: %v", err))
	}
	ectx.Env = mergedEnv

	// The default job condition requires every needed job to have succeeded.
	if inst.Job.If == "" {
		if !allNeedsOK {
			return finish(StatusSkipped, "skipped: a needed job did not succeed")
		}
	} else {
		ok, err := expr.Evaluate(inst.Job.If, ectx)
		if err != nil {
			return finish(StatusFailure, fmt.Sprintf("job condition: %v", err))
		}
		if !ok {
			return finish(StatusSkipped, "skipped: condition not met")
		}
	}

	workDir, err := e.prepareWorkspace(inst.ID)
	if err != nil {
		return finish(StatusFailure, err.Error())
	}
	ectx.BaseDir = workDir

	jobFailed := false
	failureMsg := ""
	var pendingSaves []cacheSave

	for i := range inst.Job.Steps {
		step := inst.Job.Steps[i]
		stepRes := e.runStep(ctx, inst, step, ectx, workDir, jobFailed, &pendingSaves)
		res.Steps = append(res.Steps, stepRes)

		if step.ID != "" && len(stepRes.Outputs) > 0 {
			ectx.Steps[step.ID] = stepRes.Outputs
		}

		e.emit(output.Event{
			Type:    "step.finished",
			Job:     inst.ID,
			Step:    step.DisplayName(),
			Status:  stepRes.Status,
			Message: stepRes.Message,
		})

		if stepRes.Status == StatusFailure && !step.ContinueOnError {
			if !jobFailed {
				failureMsg = fmt.Sprintf("step %q failed: %s", step.DisplayName(), stepRes.Message)
			}
			jobFailed = true
		}
	}

	if jobFailed {
		return finish(StatusFailure, failureMsg)
	}

	// Cache misses save after the job body succeeded, mirroring the hosted
	// post-step behavior.
	for _, save := range pendingSaves {
		if _, err := e.Cache.Save(save.key, workDir, save.paths); err != nil {
			return finish(StatusFailure, fmt.Sprintf("cache save %q: %v", save.key, err))
		}
	}

	return finish(StatusSuccess, "")
}

type cacheSave struct {
	key   string
	paths []string
}

// runStep executes one step, honoring its condition. When an earlier step
// already failed, the default condition skips the step; an explicit
// condition (always(), failure(), ...) is still evaluated.
func (e *LocalExecutor) runStep(
	ctx context.Context,
	inst *JobInstance,
	step workflow.Step,
	ectx *expr.Context,
	workDir string,
	jobFailed bool,
	pendingSaves *[]cacheSave,
) StepResult {
	started := time.Now()
	res := StepResult{Name: step.DisplayName()}
	finish := func(status, message string) StepResult {
		res.Status = status
		res.Message = message
		res.DurationMS = time.Since(started).Milliseconds()
		return res
	}

	if step.If == "" {
		if jobFailed {
			return finish(StatusSkipped, "")
		}
	} else {
		// success() inside a step reflects the job body so far, not needs.
		stepCtx := *ectx
		stepCtx.AllNeedsSucceeded = ectx.AllNeedsSucceeded && !jobFailed
		ok, err := expr.Evaluate(step.If, &stepCtx)
		if err != nil {
			return finish(StatusFailure, fmt.Sprintf("condition: %v", err))
		}
		if !ok {
			return finish(StatusSkipped, "")
		}
	}

	if ctx.Err() != nil {
		return finish(StatusSkipped, "canceled")
	}

	stepEnv, err := interpolatedEnv(ectx, ectx.Env, step.Env)
	if err != nil {
		return finish(StatusFailure, fmt.Sprintf("step env: %v", err))
	}

	if step.Uses != "" {
		with, err := interpolatedWith(ectx, step.With)
		if err != nil {
			return finish(StatusFailure, err.Error())
		}
		outputs, msg, err := e.runBuiltin(ctx, inst, step.Uses, with, workDir, pendingSaves)
		res.Outputs = outputs
		if err != nil {
			return finish(StatusFailure, err.Error())
		}
		return finish(StatusSuccess, msg)
	}

	script, err := expr.Interpolate(step.Run, ectx)
	if err != nil {
		return finish(StatusFailure, fmt.Sprintf("run: %v", err))
	}

	outputs, out, err := e.runShell(ctx, workDir, script, stepEnv)
	res.Outputs = outputs
	if err != nil {
		msg := err.Error()
		if trimmed := lastLines(out, 5); trimmed != "" {
			msg = fmt.Sprintf("%s: %s", msg, trimmed)
		}
		return finish(StatusFailure, msg)
	}
	return finish(StatusSuccess, "")
}

func neededResults(job *workflow.Job, finished map[string]string) map[string]string {
	out := make(map[string]string, len(job.Needs))
	for _, need := range job.Needs {
		if result, ok := finished[need]; ok {
			out[need] = result
		} else {
			out[need] = StatusFailure
		}
	}
	return out
}

// interpolatedEnv merges env layers (later layers win) and interpolates every
// value against the current expression context.
func interpolatedEnv(ectx *expr.Context, layers ...map[string]string) (map[string]string, error) {
	merged := workflow.MergeEnv(layers...)
	out := make(map[string]string, len(merged))
	for name, raw := range merged {
		val, err := expr.Interpolate(raw, ectx)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", name, err)
		}
		out[name] = val
	}
	return out, nil
}

func interpolatedWith(ectx *expr.Context, with map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(with))
	for name, raw := range with {
		val, err := expr.Interpolate(raw, ectx)
		if err != nil {
			return nil, fmt.Errorf("with.%s: %w", name, err)
		}
		out[name] = val
	}
	return out, nil
}

func lastLines(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " / ")
}
