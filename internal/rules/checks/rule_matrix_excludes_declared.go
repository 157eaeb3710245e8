package checks

import (
	"context"
	"fmt"
	"sort"

	"github.com/skarzi/matrixci/internal/rules"
	"github.com/skarzi/matrixci/internal/workflow"
)

// MatrixExcludesDeclaredRule detects matrix exclude entries that reference
// axes or values the matrix never declares. Such entries silently exclude
// nothing, which usually means a typo in a version string.
type MatrixExcludesDeclaredRule struct{}

func (r *MatrixExcludesDeclaredRule) ID() string {
	return "matrix-excludes-declared"
}

func (r *MatrixExcludesDeclaredRule) Title() string {
	return "Matrix Excludes Reference Declared Values"
}

func (r *MatrixExcludesDeclaredRule) Description() string {
	return "Verifies that every matrix exclude entry references a declared axis and a declared value.\n\n" +
		"An exclude entry that names an unknown axis or a value outside the axis list matches no cell, " +
		"so the combination it was meant to remove still runs."
}

func (r *MatrixExcludesDeclaredRule) Evaluate(ctx context.Context, wf *workflow.Workflow) ([]rules.Result, error) {
	var results []rules.Result
	for _, jobID := range sortedJobIDs(wf) {
		job := wf.Jobs[jobID]
		if job.Strategy == nil || job.Strategy.Matrix == nil {
			continue
		}
		m := job.Strategy.Matrix
		ok := true
		for _, entry := range m.Exclude {
			for axis, value := range entry {
				declared, known := m.Values[axis]
				if !known {
					results = append(results, rules.FailResult(jobID, r.ID(),
						fmt.Sprintf("Exclude entry references undeclared axis %q", axis)))
					ok = false
					continue
				}
				if !containsValue(declared, value) {
					results = append(results, rules.FailResultWithEvidence(jobID, r.ID(),
						fmt.Sprintf("Exclude value %q is not declared for axis %q", value, axis),
						map[string]string{"axis": axis, "value": value}))
					ok = false
				}
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

func sortedJobIDs(wf *workflow.Workflow) []string {
	ids := make([]string, 0, len(wf.Jobs))
	for id := range wf.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func containsValue(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func init() {
	rules.Register(&MatrixExcludesDeclaredRule{})
}
