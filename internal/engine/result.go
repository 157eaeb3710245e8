package engine

import "time"

// Instance and step statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// StepResult records the outcome of a single step within a job instance.
type StepResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`

	// Outputs holds values the step published (steps.<id>.outputs.<key>).
	Outputs map[string]string `json:"outputs,omitempty"`

	DurationMS int64 `json:"duration_ms"`
}

// InstanceResult is the outcome of one job instance (one matrix cell, or the
// whole job when there is no matrix).
type InstanceResult struct {
	InstanceID string        `json:"instance_id"`
	JobID      string        `json:"job_id"`
	Status     string        `json:"status"`
	Message    string        `json:"message,omitempty"`
	Steps      []StepResult  `json:"steps,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// jobResult folds a job's instance results into a single needs-visible value.
//
// A job is "failure" if any instance failed, "skipped" if every instance was
// skipped, and "success" otherwise.
func jobResult(results []InstanceResult) string {
	if len(results) == 0 {
		return StatusSkipped
	}
	allSkipped := true
	for _, r := range results {
		if r.Status == StatusFailure {
			return StatusFailure
		}
		if r.Status != StatusSkipped {
			allSkipped = false
		}
	}
	if allSkipped {
		return StatusSkipped
	}
	return StatusSuccess
}
