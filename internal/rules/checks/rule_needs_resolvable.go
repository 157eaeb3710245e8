package checks

import (
	"context"
	"fmt"

	"github.com/skarzi/matrixci/internal/rules"
	"github.com/skarzi/matrixci/internal/workflow"
)

// NeedsResolvableRule detects needs references to jobs that do not exist.
type NeedsResolvableRule struct{}

func (r *NeedsResolvableRule) ID() string {
	return "needs-resolvable"
}

func (r *NeedsResolvableRule) Title() string {
	return "Job Dependencies Resolve"
}

func (r *NeedsResolvableRule) Description() string {
	return "Verifies that every job's needs list only references jobs defined in the workflow."
}

func (r *NeedsResolvableRule) Evaluate(ctx context.Context, wf *workflow.Workflow) ([]rules.Result, error) {
	var results []rules.Result
	for _, jobID := range sortedJobIDs(wf) {
		job := wf.Jobs[jobID]
		ok := true
		for _, need := range job.Needs {
			if _, exists := wf.Jobs[need]; !exists {
				results = append(results, rules.FailResult(jobID, r.ID(),
					fmt.Sprintf("Needs unknown job %q", need)))
				ok = false
			}
			if need == jobID {
				results = append(results, rules.FailResult(jobID, r.ID(), "Job needs itself"))
				ok = false
			}
		}
		if ok {
			results = append(results, rules.PassResult(jobID, r.ID()))
		}
	}
	if len(results) == 0 {
		results = append(results, rules.PassResult(wf.Name, r.ID()))
	}
	return results, nil
}

func init() {
	rules.Register(&NeedsResolvableRule{})
}
