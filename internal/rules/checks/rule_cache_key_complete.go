package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/skarzi/matrixci/internal/rules"
	"github.com/skarzi/matrixci/internal/workflow"
)

// CacheKeyCompleteRule detects cache keys that omit a content hash or the
// runtime version. A key missing either dimension restores stale
// environments: dependency changes or interpreter bumps go unnoticed until
// someone bumps the epoch by hand.
type CacheKeyCompleteRule struct{}

func (r *CacheKeyCompleteRule) ID() string {
	return "cache-key-complete"
}

func (r *CacheKeyCompleteRule) Title() string {
	return "Cache Keys Cover Lockfile And Runtime Version"
}

func (r *CacheKeyCompleteRule) Description() string {
	return "Verifies that every cache step key interpolates both a hashFiles() digest and a version " +
		"reference (matrix.* or env.*).\n\n" +
		"Keys built from literals alone keep restoring the same environment after the lockfile or the " +
		"runtime version changes."
}

func (r *CacheKeyCompleteRule) Evaluate(ctx context.Context, wf *workflow.Workflow) ([]rules.Result, error) {
	var results []rules.Result
	for _, jobID := range sortedJobIDs(wf) {
		job := wf.Jobs[jobID]
		for _, step := range job.Steps {
			if step.Uses != "cache" {
				continue
			}
			key := step.With["key"]
			if strings.TrimSpace(key) == "" {
				results = append(results, rules.FailResult(jobID, r.ID(),
					fmt.Sprintf("cache step %q has no key", step.DisplayName())))
				continue
			}
			var problems []string
			if !strings.Contains(key, "hashFiles(") {
				problems = append(problems, "no hashFiles() digest")
			}
			if !strings.Contains(key, "matrix.") && !strings.Contains(key, "env.") {
				problems = append(problems, "no runtime version reference")
			}
			if len(problems) > 0 {
				results = append(results, rules.FailResultWithEvidence(jobID, r.ID(),
					fmt.Sprintf("Cache key %q: %s", key, strings.Join(problems, "; ")),
					map[string]string{"key": key}))
			} else {
				results = append(results, rules.PassResult(jobID, r.ID()))
			}
		}
	}
	if len(results) == 0 {
		results = append(results, rules.PassResult(wf.Name, r.ID()))
	}
	return results, nil
}

func init() {
	rules.Register(&CacheKeyCompleteRule{})
}
