package coverage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Uploader forwards coverage reports to an external reporting service.
//
// The service authenticates uploads with a repository token carried as a
// bearer credential. No retries: the caller decides whether an upload error
// fails the run (the fail_ci_if_error switch).
type Uploader struct {
	baseURL string
	token   string
	http    *http.Client
}

// UploadMeta identifies the run the report belongs to.
type UploadMeta struct {
	Repo   string
	Commit string
	Branch string
	RunID  string
}

func NewUploader(baseURL, token string) (*Uploader, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("coverage service URL required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid coverage service URL %q", baseURL)
	}
	return &Uploader{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Upload posts the raw report to the service. Any transport error or
// non-2xx response is returned as an error; interpreting that error is the
// caller's policy.
func (u *Uploader) Upload(ctx context.Context, report []byte, meta UploadMeta) error {
	if u == nil {
		return fmt.Errorf("uploader is nil")
	}
	if len(report) == 0 {
		return fmt.Errorf("refusing to upload an empty coverage report")
	}
	if u.token == "" {
		return fmt.Errorf("coverage upload token required (set the repository secret)")
	}

	q := url.Values{}
	if meta.Repo != "" {
		q.Set("repo", meta.Repo)
	}
	if meta.Commit != "" {
		q.Set("commit", meta.Commit)
	}
	if meta.Branch != "" {
		q.Set("branch", meta.Branch)
	}
	if meta.RunID != "" {
		q.Set("run", meta.RunID)
	}

	endpoint := u.baseURL + "/upload"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(report))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", "application/xml")

	resp, err := u.http.Do(req)
	if err != nil {
		return fmt.Errorf("coverage upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("coverage upload rejected: %d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), bytes.TrimSpace(body))
	}
	return nil
}
