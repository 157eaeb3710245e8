package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v81/github"
)

// StatusState is a commit status state accepted by the GitHub API.
type StatusState string

const (
	StatusPending StatusState = "pending"
	StatusSuccess StatusState = "success"
	StatusFailure StatusState = "failure"
	StatusError   StatusState = "error"
)

// ReportCommitStatus sets a commit status on repo (OWNER/NAME form) for the
// given SHA. statusContext distinguishes this engine's status from other
// integrations on the same commit.
func (c *Client) ReportCommitStatus(ctx context.Context, repo, sha string, state StatusState, description, statusContext string) error {
	if c == nil || c.Client == nil {
		return fmt.Errorf("github client is nil")
	}
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return fmt.Errorf("repository must be OWNER/NAME, got %q", repo)
	}
	if sha == "" {
		return fmt.Errorf("commit SHA required")
	}
	if statusContext == "" {
		statusContext = "matrixci"
	}

	// The statuses API truncates long descriptions; trim proactively so the
	// API does not reject the request.
	if len(description) > 140 {
		description = description[:137] + "..."
	}

	status := github.RepoStatus{
		State:       github.Ptr(string(state)),
		Description: github.Ptr(description),
		Context:     github.Ptr(statusContext),
	}
	_, _, err := c.Client.Repositories.CreateStatus(ctx, owner, name, sha, status)
	if err != nil {
		return fmt.Errorf("create commit status for %s@%s: %w", repo, sha, err)
	}
	return nil
}
