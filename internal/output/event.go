package output

import "github.com/skarzi/matrixci/internal/rules"

// Event is a lifecycle record for structured output.
//
// In NDJSON mode, sinks emit Events (one JSON object per line), including:
// - run.started
// - job.started
// - step.finished
// - job.finished
// - check.result
// - run.finished
//
// JSON mode remains an aggregate of Events (lifecycle noise excluded).
type Event struct {
	Type string `json:"type"`

	// Job is the job instance ID, e.g. `test (python=3.10.7, django=4.1)`.
	Job  string `json:"job,omitempty"`
	Step string `json:"step,omitempty"`

	// Status is success, failure, or skipped.
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`

	*rules.Result

	RunID      string `json:"run_id,omitempty"`
	Jobs       int    `json:"jobs,omitempty"`
	Rules      int    `json:"rules,omitempty"`
	ExitCode   int    `json:"exit_code,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// eventFromResult lifts status and message to the top-level fields: the
// embedded Result's identically-tagged fields would otherwise be suppressed
// when the event is serialized.
func eventFromResult(r rules.Result) Event {
	return Event{
		Type:    "check.result",
		Status:  string(r.Status),
		Message: r.Message,
		Result:  &r,
	}
}

// aggregate reports whether the event belongs in JSON aggregate output.
func (e Event) aggregate() bool {
	switch e.Type {
	case "check.result", "job.finished", "run.finished":
		return true
	}
	return false
}
