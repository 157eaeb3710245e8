package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/skarzi/matrixci/internal/rules"
)

// ReportSink accumulates events and writes a Markdown run summary on Close.
type ReportSink struct {
	path    string
	mu      sync.Mutex
	runID   string
	started time.Time
	jobs    []Event
	checks  []rules.Result
	exit    int
}

func NewReportSink(path string) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	return &ReportSink{path: path, started: time.Now()}, nil
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch t := v.(type) {
	case rules.Result:
		s.checks = append(s.checks, t)
	case Event:
		switch t.Type {
		case "run.started":
			s.runID = t.RunID
		case "job.finished":
			s.jobs = append(s.jobs, t)
		case "run.finished":
			s.exit = t.ExitCode
		}
	}
	return nil
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	b.WriteString("# Run Summary\n\n")
	if s.runID != "" {
		fmt.Fprintf(&b, "- Run: `%s`\n", s.runID)
	}
	fmt.Fprintf(&b, "- Date: %s\n", s.started.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Exit code: %d\n\n", s.exit)

	if len(s.jobs) > 0 {
		b.WriteString("## Jobs\n\n")
		b.WriteString("| Job | Result | Duration |\n")
		b.WriteString("| --- | --- | --- |\n")
		for _, j := range s.jobs {
			dur := time.Duration(j.DurationMS) * time.Millisecond
			fmt.Fprintf(&b, "| %s | %s | %s |\n", j.Job, j.Status, dur.Truncate(time.Millisecond))
		}
		b.WriteString("\n")
	}

	if len(s.checks) > 0 {
		b.WriteString("## Checks\n\n")
		b.WriteString("| Subject | Rule | Status | Message |\n")
		b.WriteString("| --- | --- | --- | --- |\n")
		for _, c := range s.checks {
			msg := strings.ReplaceAll(c.Message, "|", "\\|")
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", c.Subject, c.RuleID, c.Status, msg)
		}
		b.WriteString("\n")
	}

	return os.WriteFile(s.path, []byte(b.String()), 0o644)
}
