package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/skarzi/matrixci/internal/expr"
	"github.com/skarzi/matrixci/internal/rules"
	"github.com/skarzi/matrixci/internal/workflow"
)

// ArtifactUploadGatedRule detects artifact uploads from matrix jobs that are
// not gated to exactly one cell. An ungated upload runs once per cell and
// every cell after the first fails with a duplicate-name error; a gate that
// matches several cells has the same problem.
type ArtifactUploadGatedRule struct{}

func (r *ArtifactUploadGatedRule) ID() string {
	return "artifact-upload-gated"
}

func (r *ArtifactUploadGatedRule) Title() string {
	return "Matrix Artifact Uploads Are Gated To One Cell"
}

func (r *ArtifactUploadGatedRule) Description() string {
	return "Verifies that every upload-artifact step in a matrix job has a condition satisfied by exactly " +
		"one matrix cell.\n\n" +
		"Artifact names are unique within a run. When several cells of the same job upload under one name, " +
		"all but the first fail. The conventional fix is an `if:` that pins the upload to a designated cell."
}

func (r *ArtifactUploadGatedRule) Evaluate(ctx context.Context, wf *workflow.Workflow) ([]rules.Result, error) {
	var results []rules.Result
	for _, jobID := range sortedJobIDs(wf) {
		job := wf.Jobs[jobID]
		if job.Strategy == nil || job.Strategy.Matrix == nil {
			continue
		}
		cells, err := job.Strategy.Matrix.Expand()
		if err != nil {
			results = append(results, rules.ErrorResult(jobID, r.ID(),
				fmt.Sprintf("Cannot expand matrix: %v", err)))
			continue
		}

		for _, step := range job.Steps {
			if step.Uses != "upload-artifact" {
				continue
			}
			if strings.TrimSpace(step.If) == "" {
				results = append(results, rules.FailResultWithEvidence(jobID, r.ID(),
					fmt.Sprintf("upload-artifact step %q has no condition; it would run in all %d matrix cells", step.DisplayName(), len(cells)),
					map[string]string{"cells": fmt.Sprintf("%d", len(cells))}))
				continue
			}

			var matching []string
			for _, cell := range cells {
				ectx := &expr.Context{
					Matrix:            cell.Values,
					Env:               workflow.MergeEnv(wf.Env, job.Env, step.Env),
					AllNeedsSucceeded: true,
				}
				ok, err := expr.Evaluate(step.If, ectx)
				if err != nil {
					results = append(results, rules.ErrorResult(jobID, r.ID(),
						fmt.Sprintf("Cannot evaluate condition %q: %v", step.If, err)))
					matching = nil
					break
				}
				if ok {
					matching = append(matching, cell.ID())
				}
			}

			switch len(matching) {
			case 0:
				results = append(results, rules.FailResult(jobID, r.ID(),
					fmt.Sprintf("upload-artifact condition %q matches no matrix cell; the artifact is never produced", step.If)))
			case 1:
				results = append(results, rules.PassResult(jobID, r.ID()))
			default:
				results = append(results, rules.FailResultWithEvidence(jobID, r.ID(),
					fmt.Sprintf("upload-artifact condition %q matches %d matrix cells; duplicate uploads will fail", step.If, len(matching)),
					map[string]string{"matching_cells": strings.Join(matching, "; ")}))
			}
		}
	}
	if len(results) == 0 {
		results = append(results, rules.PassResult(wf.Name, r.ID()))
	}
	return results, nil
}

func init() {
	rules.Register(&ArtifactUploadGatedRule{})
}
