package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/skarzi/matrixci/internal/rules"
	"github.com/skarzi/matrixci/internal/workflow"
)

// NeedsAcyclicRule detects cycles in the needs graph. A cycle deadlocks the
// run: no job in the cycle can ever become runnable.
type NeedsAcyclicRule struct{}

func (r *NeedsAcyclicRule) ID() string {
	return "needs-acyclic"
}

func (r *NeedsAcyclicRule) Title() string {
	return "Job Dependency Graph Is Acyclic"
}

func (r *NeedsAcyclicRule) Description() string {
	return "Verifies that the needs graph contains no cycle. Jobs in a dependency cycle can never start."
}

func (r *NeedsAcyclicRule) Evaluate(ctx context.Context, wf *workflow.Workflow) ([]rules.Result, error) {
	if cycle := workflow.FindNeedsCycle(wf.Jobs); len(cycle) > 0 {
		return []rules.Result{rules.FailResultWithEvidence(cycle[0], r.ID(),
			fmt.Sprintf("Dependency cycle: %s", strings.Join(cycle, " -> ")),
			map[string]string{"cycle": strings.Join(cycle, " -> ")})}, nil
	}
	return []rules.Result{rules.PassResult(wf.Name, r.ID())}, nil
}

func init() {
	rules.Register(&NeedsAcyclicRule{})
}
