package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/skarzi/matrixci/internal/artifact"
	"github.com/skarzi/matrixci/internal/cache"
	"github.com/skarzi/matrixci/internal/config"
	gh "github.com/skarzi/matrixci/internal/github"
	"github.com/skarzi/matrixci/internal/output"
	"github.com/skarzi/matrixci/internal/rules"
	"github.com/skarzi/matrixci/internal/workflow"
)

func exitCodeForRun(fatal, partial, failures bool) int {
	// Exit code contract:
	// 0 = clean run
	// 1 = job or check failures
	// 2 = partial run (canceled / timed out / rules errored)
	// 3 = fatal error (run did not execute)
	if fatal {
		return 3
	}
	if partial {
		return 2
	}
	if failures {
		return 1
	}
	return 0
}

func setupOutputManager(cfg *config.Config) (*output.Manager, error) {
	outMgr := output.NewManager()

	// Console Sink
	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(output.NewConsoleSink(nil, cfg.Output.ConsoleFormat, cfg.Output.ConsoleFilterStatus)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Emit Sinks (additional structured streams)
	for _, emit := range cfg.Output.Emit {
		es, err := output.NewEmitSink(os.Stdout, emit)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(es); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// File Sink
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Report Sink
	if cfg.Output.Report != "" {
		rs, err := output.NewReportSink(cfg.Output.Report)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(rs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	return outMgr, nil
}

// applyRuleOptionsIfAny applies per-rule configuration supplied via repeated
// --set flags.
//
// --set values are parsed as "ruleID.option=value" and routed to the matching
// rule's Configure method (only rules that implement rules.ConfigurableRule).
//
// Example:
//
//	matrixci check --workflow ci.yml --set cache-key-complete.exempt.jobs=linting
func applyRuleOptionsIfAny(cfg *config.Config) error {
	if len(cfg.Checks.Set) == 0 {
		return nil
	}

	assignments, err := config.ParseRuleOptionAssignments(cfg.Checks.Set)
	if err != nil {
		return err
	}

	all := rules.List()
	byID := make(map[string]rules.Rule, len(all))
	for _, r := range all {
		byID[r.ID()] = r
	}

	for ruleID, opts := range assignments {
		r, ok := byID[ruleID]
		if !ok {
			return fmt.Errorf("unknown rule ID %q", ruleID)
		}
		cr, ok := r.(rules.ConfigurableRule)
		if !ok {
			return fmt.Errorf("rule %q does not support options", ruleID)
		}

		allowed := make(map[string]struct{})
		for _, opt := range cr.Options() {
			allowed[opt.Name] = struct{}{}
		}
		for name := range opts {
			if _, ok := allowed[name]; !ok {
				return fmt.Errorf("unknown option %q for rule %q", name, ruleID)
			}
		}

		if err := cr.Configure(opts); err != nil {
			return fmt.Errorf("configure rule %q: %w", ruleID, err)
		}
	}

	return nil
}

type Engine struct {
	// schedulerExecute is a test seam for streaming execution.
	// If nil, Engine uses the real local executor + scheduler.
	schedulerExecute func(ctx context.Context, cfg *config.Config, plan *RunPlan) (<-chan InstanceResult, <-chan error)

	// emit mirrors events into the run's output manager; set during Run.
	emit func(output.Event)
}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) loadWorkflow(cfg *config.Config) (*workflow.Workflow, bool) {
	if !cfg.Output.NoConsole {
		fmt.Fprintln(os.Stderr, "Loading workflow...")
	}
	wf, err := workflow.Load(cfg.Run.Workflow)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading workflow: %v\n", err)
		return nil, false
	}
	return wf, true
}

func maybeDryRun(cfg *config.Config, plan *RunPlan) (int, bool) {
	if !cfg.Run.DryRun {
		return 0, false
	}

	fmt.Printf("Run plan (%d instances):\n", len(plan.Instances))
	for _, inst := range plan.Instances {
		needs := inst.Job.Needs
		if len(needs) > 0 {
			fmt.Printf("%s  [needs: %v]\n", inst.ID, []string(needs))
		} else {
			fmt.Println(inst.ID)
		}
	}
	return 0, true
}

func (e *Engine) executePlanStream(ctx context.Context, cfg *config.Config, plan *RunPlan) (<-chan InstanceResult, <-chan error) {
	if e.schedulerExecute != nil {
		return e.schedulerExecute(ctx, cfg, plan)
	}

	fatalStream := func(err error) (<-chan InstanceResult, <-chan error) {
		resCh := make(chan InstanceResult)
		errCh := make(chan error, 1)
		close(resCh)
		errCh <- err
		close(errCh)
		return resCh, errCh
	}

	cacheStore, err := cache.NewStore(CacheDir(cfg.Run.StateDir))
	if err != nil {
		return fatalStream(err)
	}
	artifactStore, err := artifact.NewStore(ArtifactDir(cfg.Run.StateDir, plan.RunID))
	if err != nil {
		return fatalStream(err)
	}

	executor := &LocalExecutor{
		SourceDir: cfg.Run.Dir,
		WorkRoot:  WorkspaceDir(cfg.Run.StateDir, plan.RunID),
		Cache:     cacheStore,
		Artifacts: artifactStore,
		Secrets:   cfg.SecretMap(),
		Repo:      cfg.Run.Repo,
		Commit:    cfg.Run.Commit,
		Branch:    cfg.Run.Branch,
		Verbose:   cfg.Runtime.Verbose,
		Emit:      e.emit,
	}

	scheduler, err := NewScheduler(executor, cfg.Runtime.Concurrency, cfg.Runtime.FailFast)
	if err != nil {
		return fatalStream(err)
	}
	return scheduler.Execute(ctx, plan)
}

// Run executes the workflow named by the configuration and returns the
// process exit code.
func (e *Engine) Run(ctx context.Context, cfg *config.Config) int {
	wf, ok := e.loadWorkflow(cfg)
	if !ok {
		return exitCodeForRun(true, false, false)
	}

	if !Triggered(wf, cfg.Run.Event, cfg.Run.Branch) {
		if !cfg.Output.NoConsole {
			fmt.Fprintf(os.Stderr, "No trigger matches event=%s branch=%s; nothing to run.\n", cfg.Run.Event, cfg.Run.Branch)
		}
		return exitCodeForRun(false, false, false)
	}

	plan, err := BuildPlan(wf, PlanOptions{
		Event:    cfg.Run.Event,
		Branch:   cfg.Run.Branch,
		Jobs:     cfg.Run.Jobs,
		SkipJobs: cfg.Run.SkipJobs,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error planning run: %v\n", err)
		return exitCodeForRun(true, false, false)
	}
	if !cfg.Output.NoConsole {
		fmt.Fprintf(os.Stderr, "Planned %d job instances.\n", len(plan.Instances))
	}

	if code, ok := maybeDryRun(cfg, plan); ok {
		return code
	}

	outMgr, err := setupOutputManager(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output sinks: %v\n", err)
		return exitCodeForRun(true, false, false)
	}
	defer outMgr.Close()

	e.emit = func(ev output.Event) { _ = outMgr.Write(ev) }

	startedAt := time.Now().UTC()
	_ = outMgr.Write(output.Event{Type: "run.started", RunID: plan.RunID, Jobs: len(plan.Instances)})

	runCtx, cancel := context.WithTimeout(ctx, cfg.Runtime.Timeout)
	defer cancel()

	resCh, errCh := e.executePlanStream(runCtx, cfg, plan)

	var instances []InstanceResult
	hasFailures := false
	for res := range resCh {
		instances = append(instances, res)
		if res.Status == StatusFailure {
			hasFailures = true
		}
		_ = outMgr.Write(output.Event{
			Type:       "job.finished",
			Job:        res.InstanceID,
			Status:     res.Status,
			Message:    res.Message,
			DurationMS: res.Duration.Milliseconds(),
		})
	}

	var schedErr error
	// Drain scheduler errors; keep one non-nil error.
	for err := range errCh {
		if err != nil {
			schedErr = err
		}
	}

	fatal := false
	partial := false
	if schedErr != nil {
		if errors.Is(schedErr, context.Canceled) || errors.Is(schedErr, context.DeadlineExceeded) {
			partial = true
		} else {
			fatal = true
		}
		fmt.Fprintf(os.Stderr, "Run error: %v\n", schedErr)
	}

	code := exitCodeForRun(fatal, partial, hasFailures)
	_ = outMgr.Write(output.Event{Type: "run.finished", RunID: plan.RunID, ExitCode: code})

	record := &RunRecord{
		ID:         plan.RunID,
		Workflow:   wf.Name,
		Event:      cfg.Run.Event,
		Branch:     cfg.Run.Branch,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		ExitCode:   code,
		Instances:  instances,
	}
	if err := WriteRunRecord(cfg.Run.StateDir, record); err != nil {
		fmt.Fprintf(os.Stderr, "Error persisting run record: %v\n", err)
	}

	if cfg.Status.Report {
		if err := reportCommitStatus(ctx, cfg, plan.RunID, code, instances); err != nil {
			fmt.Fprintf(os.Stderr, "Error reporting commit status: %v\n", err)
		}
	}

	return code
}

func reportCommitStatus(ctx context.Context, cfg *config.Config, runID string, code int, instances []InstanceResult) error {
	token, _, err := gh.ResolveAuthToken(ctx, "")
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("no GitHub token available (set GITHUB_TOKEN)")
	}
	client, err := gh.NewClient(ctx, token, gh.WithVerbose(cfg.Runtime.Verbose, os.Stderr))
	if err != nil {
		return err
	}

	state := gh.StatusSuccess
	if code != 0 {
		state = gh.StatusFailure
	}
	failed := 0
	for _, inst := range instances {
		if inst.Status == StatusFailure {
			failed++
		}
	}
	description := fmt.Sprintf("%d jobs, %d failed (run %s)", len(instances), failed, runID)
	return client.ReportCommitStatus(ctx, cfg.Run.Repo, cfg.Run.Commit, state, description, cfg.Status.Context)
}

// RunChecks lints the workflow with the selected rules and returns the
// process exit code.
func (e *Engine) RunChecks(ctx context.Context, cfg *config.Config) int {
	wf, ok := e.loadWorkflow(cfg)
	if !ok {
		return exitCodeForRun(true, false, false)
	}

	selectedRules, err := rules.Resolve(cfg.Checks.Selector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving rules: %v\n", err)
		return exitCodeForRun(true, false, false)
	}
	if err := applyRuleOptionsIfAny(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring rules: %v\n", err)
		return exitCodeForRun(true, false, false)
	}
	if !cfg.Output.NoConsole {
		fmt.Fprintf(os.Stderr, "Selected %d rules.\n", len(selectedRules))
	}

	outMgr, err := setupOutputManager(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output sinks: %v\n", err)
		return exitCodeForRun(true, false, false)
	}
	defer outMgr.Close()

	_ = outMgr.Write(output.Event{Type: "run.started", Rules: len(selectedRules)})

	hasErrors := false
	hasFailures := false
	for _, rule := range selectedRules {
		results, err := rule.Evaluate(ctx, wf)
		if err != nil {
			_ = outMgr.Write(rules.ErrorResult(cfg.Run.Workflow, rule.ID(), fmt.Sprintf("Evaluation failed: %v", err)))
			hasErrors = true
			continue
		}
		for _, res := range results {
			// Backfill identifiers so output stays consistent and well-formed.
			if res.Subject == "" {
				res.Subject = cfg.Run.Workflow
			}
			if res.RuleID == "" {
				res.RuleID = rule.ID()
			}
			switch res.Status {
			case rules.StatusFail:
				hasFailures = true
			case rules.StatusError:
				hasErrors = true
			}
			_ = outMgr.Write(res)
		}
	}

	code := exitCodeForRun(false, hasErrors, hasFailures)
	_ = outMgr.Write(output.Event{Type: "run.finished", ExitCode: code})
	return code
}
