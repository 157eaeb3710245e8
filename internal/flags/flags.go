package flags

// Package flags defines canonical CLI flag names shared across the CLI and
// engine. Keeping these as constants avoids drift between Cobra flag wiring
// and other code paths that reference flags.
// IMPORTANT: These are flag *names* without leading dashes.
const (
	// Run
	FlagWorkflow = "workflow"
	FlagEvent    = "event"
	FlagBranch   = "branch"
	FlagRepo     = "repo"
	FlagCommit   = "commit"
	FlagDir      = "dir"
	FlagStateDir = "state-dir"
	FlagSecret   = "secret"
	FlagJobs     = "jobs"
	FlagSkipJobs = "skip-jobs"
	FlagDryRun   = "dry-run"

	// Checks
	FlagRules = "rules"
	FlagSet   = "set"

	// Output
	FlagConsoleFormat       = "console-format"
	FlagConsoleFilterStatus = "console-filter-status"
	FlagReport              = "report"
	FlagOut                 = "out"
	FlagOutFormat           = "out-format"
	FlagEmit                = "emit"
	FlagNoConsole           = "no-console"

	// Runtime
	FlagConcurrency = "concurrency"
	FlagTimeout     = "timeout"
	FlagFailFast    = "fail-fast"

	// Status
	FlagStatus        = "status"
	FlagStatusContext = "status-context"

	// Serve
	FlagListen = "listen"
)
