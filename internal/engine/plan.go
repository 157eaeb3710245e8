package engine

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/skarzi/matrixci/internal/workflow"
)

// JobInstance is a single schedulable unit: a non-matrix job, or one cell of
// a matrix job.
type JobInstance struct {
	// ID is the instance identifier, e.g. `test (python=3.10.7, django=4.1)`.
	// Non-matrix jobs use the bare job ID.
	ID    string
	JobID string
	Job   *workflow.Job

	// Cell is nil for non-matrix jobs.
	Cell *workflow.Cell
}

// RunPlan is the fully expanded execution plan for one run: every job that
// the trigger and job filters select, fanned out into instances.
type RunPlan struct {
	RunID    string
	Workflow *workflow.Workflow

	// Instances is in deterministic order: job IDs sorted, cells in matrix
	// expansion order.
	Instances []*JobInstance

	// ByJob groups instances per job ID.
	ByJob map[string][]*JobInstance
}

// PlanOptions selects which jobs a plan includes.
type PlanOptions struct {
	Event  string
	Branch string

	// Jobs and SkipJobs are path.Match patterns against job IDs.
	Jobs     []string
	SkipJobs []string
}

// Triggered reports whether the workflow's triggers match the given event.
//
// A pull_request trigger matches every pull request event (branch filters on
// pull_request are not evaluated; the engine simulates the head branch only).
// A push trigger matches push events whose branch is listed; an empty branch
// list matches every push.
func Triggered(wf *workflow.Workflow, event, branch string) bool {
	if wf == nil {
		return false
	}
	switch event {
	case "pull_request":
		return wf.On.PullRequest != nil
	case "push":
		if wf.On.Push == nil {
			return false
		}
		if len(wf.On.Push.Branches) == 0 {
			return true
		}
		for _, b := range wf.On.Push.Branches {
			if matched, _ := path.Match(b, branch); matched || b == branch {
				return true
			}
		}
		return false
	}
	return false
}

// BuildPlan expands the workflow into a run plan.
//
// Job filters apply before needs validation: keeping a job whose needed job
// was filtered out is an error, because the kept job could never start.
func BuildPlan(wf *workflow.Workflow, opts PlanOptions) (*RunPlan, error) {
	if wf == nil {
		return nil, fmt.Errorf("workflow is nil")
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}

	selected := make(map[string]*workflow.Job)
	for id, job := range wf.Jobs {
		if !jobSelected(id, opts.Jobs, opts.SkipJobs) {
			continue
		}
		selected[id] = job
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no jobs selected (workflow declares %d)", len(wf.Jobs))
	}

	for id, job := range selected {
		for _, need := range job.Needs {
			if _, ok := selected[need]; !ok {
				return nil, fmt.Errorf("job %q needs %q, which the job filters excluded", id, need)
			}
		}
	}

	if cycle := workflow.FindNeedsCycle(selected); cycle != nil {
		return nil, fmt.Errorf("needs cycle: %s", strings.Join(cycle, " -> "))
	}

	plan := &RunPlan{
		RunID:    uuid.NewString(),
		Workflow: wf,
		ByJob:    make(map[string][]*JobInstance),
	}

	jobIDs := make([]string, 0, len(selected))
	for id := range selected {
		jobIDs = append(jobIDs, id)
	}
	sort.Strings(jobIDs)

	for _, id := range jobIDs {
		job := selected[id]
		if job.Strategy == nil || job.Strategy.Matrix == nil {
			inst := &JobInstance{ID: id, JobID: id, Job: job}
			plan.Instances = append(plan.Instances, inst)
			plan.ByJob[id] = append(plan.ByJob[id], inst)
			continue
		}

		cells, err := job.Strategy.Matrix.Expand()
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", id, err)
		}
		if len(cells) == 0 {
			return nil, fmt.Errorf("job %q: matrix expands to zero cells", id)
		}
		for i := range cells {
			cell := cells[i]
			inst := &JobInstance{
				ID:    fmt.Sprintf("%s (%s)", id, cell.ID()),
				JobID: id,
				Job:   job,
				Cell:  &cell,
			}
			plan.Instances = append(plan.Instances, inst)
			plan.ByJob[id] = append(plan.ByJob[id], inst)
		}
	}

	return plan, nil
}

func jobSelected(id string, include, exclude []string) bool {
	if len(include) > 0 && !matchesAnyPattern(include, id) {
		return false
	}
	if matchesAnyPattern(exclude, id) {
		return false
	}
	return true
}

func matchesAnyPattern(patterns []string, id string) bool {
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if matched, _ := path.Match(p, id); matched {
			return true
		}
	}
	return false
}
