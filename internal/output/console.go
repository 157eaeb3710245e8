package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/skarzi/matrixci/internal/rules"
)

var (
	passColor = color.New(color.FgGreen)
	failColor = color.New(color.FgRed, color.Bold)
	skipColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

type ConsoleSink struct {
	writer          io.Writer
	format          string // "text", "json", "ndjson"
	mu              sync.Mutex
	events          []Event // for JSON aggregate output
	allowedStatuses map[string]bool
}

func NewConsoleSink(w io.Writer, format string, filterStatuses []string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}

	s := &ConsoleSink{
		writer: w,
		format: format,
	}

	if len(filterStatuses) > 0 {
		s.allowedStatuses = make(map[string]bool)
		for _, st := range filterStatuses {
			s.allowedStatuses[strings.ToUpper(st)] = true
		}
	}

	return s
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) writeLocked(v any) error {
	// Apply status filtering if configured.
	if len(s.allowedStatuses) > 0 {
		if r, ok := v.(rules.Result); ok && !s.allowedStatuses[string(r.Status)] {
			return nil
		}
	}

	switch s.format {
	case "json":
		e, ok := asEvent(v)
		if !ok || !e.aggregate() {
			return nil
		}
		s.events = append(s.events, e)
		return nil
	case "ndjson":
		e, ok := asEvent(v)
		if !ok {
			return nil
		}
		if err := json.NewEncoder(s.writer).Encode(e); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	case "text":
		return s.writeText(v)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func (s *ConsoleSink) writeText(v any) error {
	switch t := v.(type) {
	case rules.Result:
		c := statusColor(string(t.Status))
		if _, err := c.Fprintf(s.writer, "[%s]", t.Status); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(s.writer, " %s: %s", t.Subject, t.RuleID); err != nil {
			return err
		}
		if t.Message != "" {
			if _, err := fmt.Fprintf(s.writer, " - %s", t.Message); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(s.writer); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	case Event:
		return s.writeTextEvent(t)
	default:
		return nil
	}
}

func (s *ConsoleSink) writeTextEvent(e Event) error {
	switch e.Type {
	case "job.started":
		if _, err := dimColor.Fprintf(s.writer, "--- %s\n", e.Job); err != nil {
			return err
		}
	case "step.finished":
		if e.Status == "failure" {
			if _, err := failColor.Fprintf(s.writer, "    x %s", e.Step); err != nil {
				return err
			}
		} else if _, err := fmt.Fprintf(s.writer, "    - %s", e.Step); err != nil {
			return err
		}
		if e.Message != "" {
			if _, err := dimColor.Fprintf(s.writer, " (%s)", e.Message); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(s.writer); err != nil {
			return err
		}
	case "job.finished":
		c := statusColor(e.Status)
		if _, err := c.Fprintf(s.writer, "%s", strings.ToUpper(e.Status)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(s.writer, " %s", e.Job); err != nil {
			return err
		}
		if e.DurationMS > 0 {
			if _, err := dimColor.Fprintf(s.writer, " (%s)", (time.Duration(e.DurationMS) * time.Millisecond).Truncate(time.Millisecond)); err != nil {
				return err
			}
		}
		if e.Message != "" {
			if _, err := fmt.Fprintf(s.writer, " - %s", e.Message); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(s.writer); err != nil {
			return err
		}
	case "run.finished":
		if _, err := fmt.Fprintf(s.writer, "run finished: exit code %d\n", e.ExitCode); err != nil {
			return err
		}
	}
	return flushIfPossible(s.writer)
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == "json" {
		encoder := json.NewEncoder(s.writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(s.events); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	}
	if s.format != "text" && s.format != "ndjson" {
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
	return nil
}

func statusColor(status string) *color.Color {
	switch strings.ToUpper(status) {
	case "PASS", "SUCCESS":
		return passColor
	case "FAIL", "FAILURE", "ERROR":
		return failColor
	default:
		return skipColor
	}
}

func asEvent(v any) (Event, bool) {
	switch t := v.(type) {
	case Event:
		return t, true
	case rules.Result:
		return eventFromResult(t), true
	default:
		return Event{}, false
	}
}
