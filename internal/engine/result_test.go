package engine

import "testing"

func TestJobResult(t *testing.T) {
	cases := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"all success", []string{StatusSuccess, StatusSuccess}, StatusSuccess},
		{"one failure", []string{StatusSuccess, StatusFailure, StatusSuccess}, StatusFailure},
		{"all skipped", []string{StatusSkipped, StatusSkipped}, StatusSkipped},
		{"skipped and success", []string{StatusSkipped, StatusSuccess}, StatusSuccess},
		{"skipped and failure", []string{StatusSkipped, StatusFailure}, StatusFailure},
	}
	for _, tc := range cases {
		results := make([]InstanceResult, 0, len(tc.statuses))
		for _, s := range tc.statuses {
			results = append(results, InstanceResult{Status: s})
		}
		if got := jobResult(results); got != tc.want {
			t.Errorf("%s: jobResult = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestExitCodeForRun(t *testing.T) {
	cases := []struct {
		fatal, partial, failures bool
		want                     int
	}{
		{false, false, false, 0},
		{false, false, true, 1},
		{false, true, false, 2},
		{false, true, true, 2},
		{true, false, false, 3},
		{true, true, true, 3},
	}
	for _, tc := range cases {
		if got := exitCodeForRun(tc.fatal, tc.partial, tc.failures); got != tc.want {
			t.Errorf("exitCodeForRun(%v, %v, %v) = %d, want %d", tc.fatal, tc.partial, tc.failures, got, tc.want)
		}
	}
}
