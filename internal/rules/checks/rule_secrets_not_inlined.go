package checks

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/skarzi/matrixci/internal/rules"
	"github.com/skarzi/matrixci/internal/workflow"
)

// SecretsNotInlinedRule detects credentials written literally into a
// workflow instead of referenced through ${{ secrets.* }}.
type SecretsNotInlinedRule struct{}

// tokenParams are `with:` parameter names that carry credentials.
var tokenParams = map[string]bool{
	"token":      true,
	"api-token":  true,
	"auth-token": true,
	"password":   true,
}

// literalTokenPattern matches strings that look like pasted credentials:
// long unbroken base64/hex-ish runs.
var literalTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{20,}$`)

func (r *SecretsNotInlinedRule) ID() string {
	return "secrets-not-inlined"
}

func (r *SecretsNotInlinedRule) Title() string {
	return "Credentials Come From Secrets"
}

func (r *SecretsNotInlinedRule) Description() string {
	return "Verifies that credential-bearing step parameters reference ${{ secrets.* }} rather than " +
		"inlining a literal token.\n\n" +
		"Workflow files are committed to the repository; a literal token in one is leaked the moment " +
		"it is pushed."
}

func (r *SecretsNotInlinedRule) Evaluate(ctx context.Context, wf *workflow.Workflow) ([]rules.Result, error) {
	var results []rules.Result
	for _, jobID := range sortedJobIDs(wf) {
		job := wf.Jobs[jobID]
		ok := true
		for _, step := range job.Steps {
			for name, value := range step.With {
				if !tokenParams[name] {
					continue
				}
				value = strings.TrimSpace(value)
				if value == "" {
					continue
				}
				if strings.Contains(value, "${{") && strings.Contains(value, "secrets.") {
					continue
				}
				ok = false
				message := fmt.Sprintf("Step %q parameter %q does not reference a secret", step.DisplayName(), name)
				if literalTokenPattern.MatchString(value) {
					message = fmt.Sprintf("Step %q parameter %q appears to inline a literal credential", step.DisplayName(), name)
				}
				// Never echo the value itself.
				results = append(results, rules.FailResult(jobID, r.ID(), message))
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
	rules.Register(&SecretsNotInlinedRule{})
}
