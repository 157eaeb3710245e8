package rules

type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusSkipped Status = "SKIPPED"
	StatusError   Status = "ERROR"
)

type Result struct {
	RuleID string `json:"rule_id"`
	// Subject names what the finding is about: a job ID, "job (cell)" for a
	// matrix instance, or the workflow name itself.
	Subject string `json:"subject"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	// Evidence contains simple key-value string pairs supporting the result.
	Evidence map[string]string `json:"evidence,omitempty"`
}
