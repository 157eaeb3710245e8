package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields that affect run
	// behavior, keep the CLI flags in internal/cli/run.go in sync.
	Run     Run
	Checks  Checks
	Output  Output
	Runtime Runtime
	Status  Status
}

type Run struct {
	// Workflow is the workflow definition to execute: a local path or an
	// http(s) URL (see --workflow).
	Workflow string

	// Event is the simulated trigger event (see --event).
	// Allowed values: push, pull_request.
	Event string

	// Branch is the branch the event refers to (see --branch).
	// Push triggers match against this value.
	Branch string

	// Repo is the repository the run reports against, as OWNER/NAME
	// (see --repo). Optional; required only for commit status reporting.
	Repo string

	// Commit is the commit SHA the run reports against (see --commit).
	Commit string

	// Dir is the source tree the checkout step copies from (see --dir).
	Dir string

	// StateDir is where run state (workspaces, caches, artifacts) lives
	// (see --state-dir).
	StateDir string

	// Secrets provides run secrets as NAME=value (repeatable; see --secret).
	// Values are referenced in workflows as ${{ secrets.NAME }}.
	Secrets []string

	// Jobs filters which jobs run, using Go path.Match style patterns
	// against job IDs (see --jobs). Empty means all jobs.
	Jobs []string

	// SkipJobs excludes jobs by the same pattern rules (see --skip-jobs).
	SkipJobs []string

	// DryRun prints the run plan without executing (see --dry-run).
	DryRun bool
}

type Checks struct {
	// Selector selects which lint rules to run.
	// Empty means all rules; otherwise a comma-separated list of rule IDs
	// (see --rules).
	Selector string

	// Set provides per-rule option overrides from the CLI.
	// Entries are of the form ruleID.option=value (repeatable; see --set).
	Set []string
}

type Output struct {
	// ConsoleFormat controls the human-facing console sink format
	// (see --console-format). Allowed values: text, json, ndjson.
	ConsoleFormat string

	// ConsoleFilterStatus filters console output by result status
	// (see --console-filter-status). Allowed values: PASS, FAIL, ERROR, SKIPPED.
	ConsoleFilterStatus []string

	// Report writes a Markdown run summary to this path (see --report).
	Report string

	// Out writes structured output to this path (see --out).
	Out string

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, inferred from the extension.
	OutFormat string

	// Emit writes an additional structured event stream to stdout (see --emit).
	// Allowed values: json, ndjson.
	Emit []string

	// NoConsole suppresses the console sink (see --no-console).
	NoConsole bool
}

type Runtime struct {
	// Concurrency bounds how many job instances run in parallel
	// (see --concurrency). Must be >= 1.
	Concurrency int

	// Timeout is the global run timeout (see --timeout). Must be > 0.
	Timeout time.Duration

	// FailFast cancels still-pending job instances after the first failure
	// (see --fail-fast).
	FailFast bool

	// Verbose enables detailed diagnostics.
	Verbose bool
}

type Status struct {
	// Report enables commit status reporting to GitHub after the run
	// (see --status). Requires Run.Repo and Run.Commit plus a token.
	Report bool

	// Context is the status context string shown on the commit
	// (see --status-context).
	Context string
}

func New() *Config {
	return &Config{
		Run: Run{
			Event:    "push",
			Branch:   "master",
			Dir:      ".",
			StateDir: ".matrixci",
		},
		Output: Output{
			ConsoleFormat: "text",
		},
		Runtime: Runtime{
			Concurrency: 4,
			Timeout:     60 * time.Minute,
		},
		Status: Status{
			Context: "matrixci",
		},
	}
}

func (c *Config) Validate() error {
	// Normalize comma-delimited list inputs.
	c.Run.Jobs = splitCommaList(c.Run.Jobs)
	c.Run.SkipJobs = splitCommaList(c.Run.SkipJobs)
	c.Checks.Set = splitCommaList(c.Checks.Set)

	if strings.TrimSpace(c.Run.Workflow) == "" {
		return errors.New("--workflow is required")
	}

	c.Run.Event = normalizeEnumValue(c.Run.Event)
	if c.Run.Event != "push" && c.Run.Event != "pull_request" {
		return fmt.Errorf("unsupported --event: %s (must be one of: push, pull_request)", c.Run.Event)
	}

	if c.Run.Repo != "" && !strings.Contains(c.Run.Repo, "/") {
		return fmt.Errorf("--repo must be OWNER/NAME, got %q", c.Run.Repo)
	}

	if _, err := ParseSecretAssignments(c.Run.Secrets); err != nil {
		return err
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		c.Output.ConsoleFormat = "text"
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	for _, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v != "json" && v != "ndjson" {
			return fmt.Errorf("unsupported --emit value: %s (must be one of: json, ndjson)", emit)
		}
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	// Runtime validation
	if c.Runtime.Concurrency <= 0 {
		return errors.New("--concurrency must be >= 1")
	}
	if c.Runtime.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}

	// Status validation
	if c.Status.Report {
		if c.Run.Repo == "" {
			return errors.New("--status requires --repo")
		}
		if c.Run.Commit == "" {
			return errors.New("--status requires --commit")
		}
	}

	// Rule option syntax validation (rule.option=value)
	if len(c.Checks.Set) > 0 {
		if _, err := ParseRuleOptionAssignments(c.Checks.Set); err != nil {
			return err
		}
	}

	return nil
}

// Secrets returns the parsed secret map. Call Validate first; invalid
// entries yield an empty map here.
func (c *Config) SecretMap() map[string]string {
	m, err := ParseSecretAssignments(c.Run.Secrets)
	if err != nil {
		return map[string]string{}
	}
	return m
}

// ParseSecretAssignments parses NAME=value entries. Names must be non-empty;
// empty values are allowed (a secret can be deliberately blank).
func ParseSecretAssignments(values []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, raw := range values {
		name, value, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --secret entry %q: expected NAME=value", raw)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid --secret entry %q: empty name", raw)
		}
		out[name] = value
	}
	return out, nil
}

// ParseRuleOptionAssignments parses values of the form "ruleID.option=value".
//
// Notes:
// - Entries may be provided via repeated flags and/or comma-delimited lists.
// - This validates syntax only (no validation of rule IDs or option names).
// - Empty values are allowed ("rule.option=").
func ParseRuleOptionAssignments(values []string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	for _, raw := range splitCommaList(values) {
		left, value, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set entry %q: expected rule.option=value", raw)
		}
		ruleID, opt, ok := strings.Cut(strings.TrimSpace(left), ".")
		if !ok {
			return nil, fmt.Errorf("invalid --set entry %q: expected rule.option=value", raw)
		}
		ruleID = strings.TrimSpace(ruleID)
		opt = strings.TrimSpace(opt)
		if ruleID == "" || opt == "" {
			return nil, fmt.Errorf("invalid --set entry %q: expected non-empty rule and option", raw)
		}
		if _, ok := out[ruleID]; !ok {
			out[ruleID] = make(map[string]string)
		}
		out[ruleID][opt] = strings.TrimSpace(value)
	}
	return out, nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
