package rules

import (
	"context"

	"github.com/skarzi/matrixci/internal/workflow"
)

// Rule is a workflow lint rule. Rules inspect a parsed workflow and report
// findings; they never execute anything.
type Rule interface {
	ID() string
	Title() string
	Description() string

	// Evaluate returns zero or more findings for the workflow. A rule with
	// nothing to say about a workflow returns a single PASS result so runs
	// are auditable.
	Evaluate(ctx context.Context, wf *workflow.Workflow) ([]Result, error)
}

type Option struct {
	Name        string
	Description string
	Default     string
}

// ConfigurableRule is a Rule that accepts per-rule options via --set.
type ConfigurableRule interface {
	Rule
	Options() []Option
	Configure(opts map[string]string) error
}
