package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/skarzi/matrixci/internal/rules"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestConsoleSink_Text(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf, "text", nil)

	if err := s.Write(rules.FailResult("test", "cache-key-complete", "no hashFiles() digest")); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(Event{Type: "job.started", Job: "test (python=3.10.7, django=4.1)"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(Event{Type: "step.finished", Job: "test (python=3.10.7, django=4.1)", Step: "pytest --cov", Status: "success"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(Event{Type: "job.finished", Job: "test (python=3.10.7, django=4.1)", Status: "success", DurationMS: 1200}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{
		"[FAIL] test: cache-key-complete - no hashFiles() digest",
		"--- test (python=3.10.7, django=4.1)",
		"    - pytest --cov",
		"SUCCESS test (python=3.10.7, django=4.1)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConsoleSink_StatusFilter(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf, "text", []string{"fail"})

	_ = s.Write(rules.PassResult("linting", "needs-acyclic"))
	_ = s.Write(rules.FailResult("test", "cache-key-complete", "bad key"))
	_ = s.Close()

	out := buf.String()
	if strings.Contains(out, "needs-acyclic") {
		t.Errorf("filtered PASS result still printed:\n%s", out)
	}
	if !strings.Contains(out, "cache-key-complete") {
		t.Errorf("FAIL result missing:\n%s", out)
	}
}

func TestConsoleSink_JSONAggregate(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf, "json", nil)

	_ = s.Write(Event{Type: "job.started", Job: "test"})
	_ = s.Write(Event{Type: "job.finished", Job: "test", Status: "success"})
	_ = s.Write(rules.PassResult("test", "needs-acyclic"))
	_ = s.Write(Event{Type: "run.finished", ExitCode: 0})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	var events []Event
	if err := json.Unmarshal(buf.Bytes(), &events); err != nil {
		t.Fatalf("aggregate is not a JSON array: %v\n%s", err, buf.String())
	}
	if len(events) != 3 {
		t.Fatalf("aggregate has %d events, want 3 (job.started excluded)", len(events))
	}
	if events[0].Type != "job.finished" || events[1].Type != "check.result" || events[2].Type != "run.finished" {
		t.Errorf("aggregate order = %s, %s, %s", events[0].Type, events[1].Type, events[2].Type)
	}
}

func TestEmitSink_NDJSONStreams(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewEmitSink(&buf, "ndjson")
	if err != nil {
		t.Fatal(err)
	}

	_ = s.Write(Event{Type: "run.started", RunID: "run-1"})
	_ = s.Write(Event{Type: "job.started", Job: "linting"})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d:\n%s", len(lines), buf.String())
	}
	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.Type != "run.started" || first.RunID != "run-1" {
		t.Errorf("first line = %+v", first)
	}
}

func TestNewEmitSink_Validation(t *testing.T) {
	if _, err := NewEmitSink(nil, "json"); err == nil {
		t.Error("expected error for nil writer")
	}
	if _, err := NewEmitSink(&bytes.Buffer{}, "yaml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestFileSink_InfersFormat(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "results.json")
	s, err := NewFileSink(path, "")
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Write(Event{Type: "job.finished", Job: "test", Status: "success"})
	_ = s.Write(Event{Type: "step.finished", Job: "test", Step: "pytest"})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var events []Event
	if err := json.Unmarshal(raw, &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != "job.finished" {
		t.Errorf("events = %+v", events)
	}

	if _, err := NewFileSink(filepath.Join(dir, "results.txt"), ""); err == nil {
		t.Error("expected error for uninferable extension")
	}
}

func TestFileSink_NDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.ndjson")
	s, err := NewFileSink(path, "")
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Write(Event{Type: "job.started", Job: "test"})
	_ = s.Write(Event{Type: "job.finished", Job: "test", Status: "failure"})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d:\n%s", len(lines), raw)
	}
}

func TestReportSink_Markdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	s, err := NewReportSink(path)
	if err != nil {
		t.Fatal(err)
	}

	_ = s.Write(Event{Type: "run.started", RunID: "run-1"})
	_ = s.Write(Event{Type: "job.finished", Job: "test (python=3.10.7, django=4.1)", Status: "success", DurationMS: 900})
	_ = s.Write(rules.FailResult("test", "cache-key-complete", "key has no hashFiles() | digest"))
	_ = s.Write(Event{Type: "run.finished", ExitCode: 1})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	report := string(raw)
	for _, want := range []string{
		"# Run Summary",
		"`run-1`",
		"Exit code: 1",
		"## Jobs",
		"| test (python=3.10.7, django=4.1) | success |",
		"## Checks",
		"cache-key-complete",
		`\|`, // pipes in messages are escaped
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestManager_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	m := NewManager()
	if err := m.AddSink(NewConsoleSink(&a, "text", nil)); err != nil {
		t.Fatal(err)
	}
	emit, err := NewEmitSink(&b, "ndjson")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.AddSink(emit); err != nil {
		t.Fatal(err)
	}
	if err := m.AddSink(nil); err == nil {
		t.Error("expected error for nil sink")
	}

	if err := m.Write(Event{Type: "job.finished", Job: "test", Status: "success"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(a.String(), "SUCCESS test") {
		t.Errorf("console sink missed the event:\n%s", a.String())
	}
	if !strings.Contains(b.String(), `"job.finished"`) {
		t.Errorf("emit sink missed the event:\n%s", b.String())
	}
}
