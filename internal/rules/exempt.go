package rules

import (
	"context"
	"path"
	"strings"

	"github.com/skarzi/matrixci/internal/workflow"
)

// Exemptions downgrades findings for exempted jobs to SKIPPED. Patterns use
// Go path.Match style against the result subject's job ID.
type Exemptions struct {
	Patterns []string
}

// Options returns the standard configuration options for exemptions.
func (e *Exemptions) Options() []Option {
	return []Option{
		{
			Name:        "exempt.jobs",
			Description: "Comma-separated list of job ID patterns this rule ignores (e.g. legacy-*, docs).",
		},
	}
}

// Configure parses the exemption options.
func (e *Exemptions) Configure(opts map[string]string) {
	e.Patterns = nil
	if val, ok := opts["exempt.jobs"]; ok && val != "" {
		for _, s := range strings.Split(val, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				e.Patterns = append(e.Patterns, s)
			}
		}
	}
}

// Apply downgrades a FAIL for an exempted subject to SKIPPED.
func (e *Exemptions) Apply(res Result) Result {
	if res.Status != StatusFail || len(e.Patterns) == 0 {
		return res
	}
	// The subject may carry a matrix suffix: "job (axis=value, ...)".
	jobID := res.Subject
	if i := strings.Index(jobID, " ("); i >= 0 {
		jobID = jobID[:i]
	}
	for _, pattern := range e.Patterns {
		if ok, err := path.Match(pattern, jobID); err == nil && ok {
			res.Status = StatusSkipped
			res.Message = "Exempted: " + res.Message
			return res
		}
	}
	return res
}

// ExemptWrapper wraps a Rule to provide automatic exemption support.
type ExemptWrapper struct {
	Rule
	exemptions Exemptions
}

func (w *ExemptWrapper) ID() string          { return w.Rule.ID() }
func (w *ExemptWrapper) Title() string       { return w.Rule.Title() }
func (w *ExemptWrapper) Description() string { return w.Rule.Description() }

// Evaluate calls the inner rule and then applies the exemption logic.
func (w *ExemptWrapper) Evaluate(ctx context.Context, wf *workflow.Workflow) ([]Result, error) {
	results, err := w.Rule.Evaluate(ctx, wf)
	if err != nil {
		return results, err
	}
	for i := range results {
		results[i] = w.exemptions.Apply(results[i])
	}
	return results, nil
}

// Options returns the combined options of the exemptions and the inner rule
// (if configurable).
func (w *ExemptWrapper) Options() []Option {
	opts := w.exemptions.Options()
	if cr, ok := w.Rule.(ConfigurableRule); ok {
		opts = append(opts, cr.Options()...)
	}
	return opts
}

// Configure configures the exemptions and the inner rule (if configurable).
func (w *ExemptWrapper) Configure(opts map[string]string) error {
	w.exemptions.Configure(opts)
	if cr, ok := w.Rule.(ConfigurableRule); ok {
		return cr.Configure(opts)
	}
	return nil
}
