package rules

func NewResult(subject, ruleID string, status Status, message string) Result {
	res := Result{
		Status:  status,
		Subject: subject,
		RuleID:  ruleID,
	}
	if message != "" {
		res.Message = message
	}
	return res
}

func PassResult(subject, ruleID string) Result {
	return NewResult(subject, ruleID, StatusPass, "")
}

func FailResult(subject, ruleID, message string) Result {
	return NewResult(subject, ruleID, StatusFail, message)
}

func ErrorResult(subject, ruleID, message string) Result {
	return NewResult(subject, ruleID, StatusError, message)
}

func SkippedResult(subject, ruleID, message string) Result {
	return NewResult(subject, ruleID, StatusSkipped, message)
}

func FailResultWithEvidence(subject, ruleID, message string, evidence map[string]string) Result {
	res := NewResult(subject, ruleID, StatusFail, message)
	res.Evidence = evidence
	return res
}
