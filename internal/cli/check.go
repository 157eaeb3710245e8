package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skarzi/matrixci/internal/engine"
	"github.com/skarzi/matrixci/internal/flags"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Lint a workflow definition without running it",
	Long: `Lint a workflow definition with the registered rules.

Checks are static: they parse the workflow, expand its matrices, and verify
structural properties (excludes reference declared values, needs resolve and
are acyclic, artifact uploads are gated to one cell, cache keys are complete,
secrets are not inlined). Nothing is executed.

Exit codes:
	0 = all checks passed
	1 = check failures
	2 = some checks errored
	3 = fatal error (workflow did not load)

Examples:
  # Run all rules
  matrixci check --workflow .ci/workflow.yml

  # Only specific rules
  matrixci check --workflow .ci/workflow.yml --rules needs-acyclic,cache-key-complete

  # Exempt a job from a rule
  matrixci check --workflow .ci/workflow.yml --set cache-key-complete.exempt.jobs=linting
`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 && cmd.Flags().NFlag() == 0 {
			_ = cmd.Help()
			return
		}

		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}

		eng := engine.NewEngine()
		os.Exit(eng.RunChecks(context.Background(), cfg))
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&cfg.Run.Workflow, flags.FlagWorkflow, "", "Workflow definition: a local path or http(s) URL (required)")

	// Checks
	checkCmd.Flags().StringVar(&cfg.Checks.Selector, flags.FlagRules, "", "Rule selector: comma-separated rule IDs (empty = all rules)")
	checkCmd.Flags().StringSliceVar(&cfg.Checks.Set, flags.FlagSet, nil, "Per-rule options as ruleID.option=value (repeatable; comma-separated accepted)")

	// Output
	checkCmd.Flags().StringVar(&cfg.Output.ConsoleFormat, flags.FlagConsoleFormat, "text", "Console output format: text|json|ndjson (default: text)")
	checkCmd.Flags().StringSliceVar(&cfg.Output.ConsoleFilterStatus, flags.FlagConsoleFilterStatus, nil, "Filter console output by status (PASS, FAIL, ERROR, SKIPPED). Comma-separated.")
	checkCmd.Flags().StringVar(&cfg.Output.Report, flags.FlagReport, "", "Write a Markdown report to this path")
	checkCmd.Flags().StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	checkCmd.Flags().StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	checkCmd.Flags().StringSliceVar(&cfg.Output.Emit, flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	checkCmd.Flags().BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out/--report)")
}
