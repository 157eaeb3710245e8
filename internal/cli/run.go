package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skarzi/matrixci/internal/config"
	"github.com/skarzi/matrixci/internal/engine"
	"github.com/skarzi/matrixci/internal/flags"
)

var cfg = config.New()

const runHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Environment:
	Commit status reporting (--status) authenticates to GitHub using an access
	token.

	Sources (in order):
	1) GITHUB_TOKEN environment variable
	2) GitHub CLI (gh) authentication via gh auth token (if gh is installed and logged in)

  Workflow secrets are never read from the environment; pass them explicitly
  with --secret NAME=value so a run's inputs stay auditable.

  Examples:
    # macOS/Linux
    export GITHUB_TOKEN="<your_token>"
    matrixci run --workflow .ci/workflow.yml --status --repo my-org/my-repo --commit <sha>

{{if .HasAvailableSubCommands}}Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a workflow on the local host",
	Long: `Execute a workflow definition on the local host.

The engine expands matrix jobs into one instance per cell, orders jobs by
their needs graph, and runs instances concurrently up to --concurrency.
Each instance gets an isolated workspace; caches and artifacts live under
--state-dir.

Output:
	Console output is controlled by --console-format (default: text).
	Structured outputs can be written via:
	- --out / --out-format: write an aggregate JSON array or NDJSON stream to a file
	- --emit: write an additional structured stream to stdout (json or ndjson)
	- --no-console: suppress the console sink (use with --emit/--out for machine output)

	NDJSON mode emits one JSON object per line. Objects are lifecycle Events with a
	"type" field (run.started, job.started, step.finished, job.finished,
	run.finished).

Exit codes:
	0 = clean run
	1 = job failures
	2 = partial run (canceled or timed out)
	3 = fatal error (run did not execute)

Examples:
  # Run the workflow as a push to master
  matrixci run --workflow .ci/workflow.yml

  # Simulate a pull request event
  matrixci run --workflow .ci/workflow.yml --event pull_request

  # Only the test matrix, four cells at a time, stop on first failure
  matrixci run --workflow .ci/workflow.yml --jobs test --concurrency 4 --fail-fast

  # Pass the coverage service token as a secret
  matrixci run --workflow .ci/workflow.yml --secret CODECOV_TOKEN=<token>

	# AI Agent: stream machine-readable events to stdout
	matrixci run --workflow .ci/workflow.yml --no-console --emit ndjson
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
		os.Exit(eng.Run(context.Background(), cfg))
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.SetHelpTemplate(runHelpTemplate)

	// MAINTAINER NOTE: If you add/change/remove any run-affecting flags here,
	// keep internal/config/config.go's doc comments in sync.

	// Run
	runCmd.Flags().StringVar(&cfg.Run.Workflow, flags.FlagWorkflow, "", "Workflow definition: a local path or http(s) URL (required)")
	runCmd.Flags().StringVar(&cfg.Run.Event, flags.FlagEvent, cfg.Run.Event, "Trigger event to simulate: push|pull_request (default: push)")
	runCmd.Flags().StringVar(&cfg.Run.Branch, flags.FlagBranch, cfg.Run.Branch, "Branch the event refers to (default: master)")
	runCmd.Flags().StringVar(&cfg.Run.Repo, flags.FlagRepo, "", "Repository the run reports against, as OWNER/NAME")
	runCmd.Flags().StringVar(&cfg.Run.Commit, flags.FlagCommit, "", "Commit SHA the run reports against")
	runCmd.Flags().StringVar(&cfg.Run.Dir, flags.FlagDir, cfg.Run.Dir, "Source tree the checkout step copies from (default: current directory)")
	runCmd.Flags().StringVar(&cfg.Run.StateDir, flags.FlagStateDir, cfg.Run.StateDir, "Directory for run state: workspaces, caches, artifacts (default: .matrixci)")
	runCmd.Flags().StringSliceVar(&cfg.Run.Secrets, flags.FlagSecret, nil, "Run secret as NAME=value (repeatable; referenced as ${{ secrets.NAME }})")
	runCmd.Flags().StringSliceVar(&cfg.Run.Jobs, flags.FlagJobs, nil, "Only run matching jobs (repeatable; Go path.Match style patterns against job IDs)")
	runCmd.Flags().StringSliceVar(&cfg.Run.SkipJobs, flags.FlagSkipJobs, nil, "Skip matching jobs (same pattern rules as --jobs)")
	runCmd.Flags().BoolVar(&cfg.Run.DryRun, flags.FlagDryRun, false, "Print the run plan without executing")

	// Output
	runCmd.Flags().StringVar(&cfg.Output.ConsoleFormat, flags.FlagConsoleFormat, "text", "Console output format: text|json|ndjson (default: text)")
	runCmd.Flags().StringSliceVar(&cfg.Output.ConsoleFilterStatus, flags.FlagConsoleFilterStatus, nil, "Filter console check output by status (PASS, FAIL, ERROR, SKIPPED). Comma-separated.")
	runCmd.Flags().StringVar(&cfg.Output.Report, flags.FlagReport, "", "Write a Markdown run summary to this path")
	runCmd.Flags().StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	runCmd.Flags().StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	runCmd.Flags().StringSliceVar(&cfg.Output.Emit, flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	runCmd.Flags().BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out/--report)")

	// Runtime
	runCmd.Flags().IntVar(&cfg.Runtime.Concurrency, flags.FlagConcurrency, cfg.Runtime.Concurrency, "Concurrent job instances (default: 4)")
	runCmd.Flags().DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, cfg.Runtime.Timeout, "Global run timeout (default: 60m)")
	runCmd.Flags().BoolVar(&cfg.Runtime.FailFast, flags.FlagFailFast, false, "Skip still-pending job instances after the first failure (default: false)")

	// Status
	runCmd.Flags().BoolVar(&cfg.Status.Report, flags.FlagStatus, false, "Report a commit status to GitHub after the run (requires --repo and --commit)")
	runCmd.Flags().StringVar(&cfg.Status.Context, flags.FlagStatusContext, cfg.Status.Context, "Commit status context string (default: matrixci)")
}
