package checks

import (
	"context"

	"github.com/skarzi/matrixci/internal/rules"
	"github.com/skarzi/matrixci/internal/workflow"
)

// PushTriggerBranchesRule detects push triggers with an empty branch list.
// A push trigger without branches matches nothing here, which almost always
// means the author intended to restrict to a primary branch and misspelled
// the key.
type PushTriggerBranchesRule struct{}

func (r *PushTriggerBranchesRule) ID() string {
	return "push-trigger-branches"
}

func (r *PushTriggerBranchesRule) Title() string {
	return "Push Trigger Names Branches"
}

func (r *PushTriggerBranchesRule) Description() string {
	return "Verifies that a push trigger lists at least one branch. An empty branch list never matches a push event."
}

func (r *PushTriggerBranchesRule) Evaluate(ctx context.Context, wf *workflow.Workflow) ([]rules.Result, error) {
	if wf.On.Push != nil && len(wf.On.Push.Branches) == 0 {
		return []rules.Result{rules.FailResult(wf.Name, r.ID(),
			"Push trigger declares no branches; no push event will start this workflow")}, nil
	}
	return []rules.Result{rules.PassResult(wf.Name, r.ID())}, nil
}

func init() {
	rules.Register(&PushTriggerBranchesRule{})
}
