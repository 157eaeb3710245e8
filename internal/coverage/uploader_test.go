package coverage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUploader_Upload(t *testing.T) {
	var gotAuth, gotQuery, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	u, err := NewUploader(server.URL, "tok-123")
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}

	err = u.Upload(context.Background(), []byte(sampleReport), UploadMeta{
		Repo:   "octo/widgets",
		Commit: "abc123",
		Branch: "master",
		RunID:  "run-1",
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	for _, want := range []string{"repo=octo%2Fwidgets", "commit=abc123", "branch=master", "run=run-1"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
	if gotBody != sampleReport {
		t.Error("report body not forwarded verbatim")
	}
}

func TestUploader_RejectedUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad token"))
	}))
	defer server.Close()

	u, err := NewUploader(server.URL, "bad")
	if err != nil {
		t.Fatal(err)
	}
	err = u.Upload(context.Background(), []byte(sampleReport), UploadMeta{})
	if err == nil {
		t.Fatal("expected error for rejected upload")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "bad token") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUploader_RequiresToken(t *testing.T) {
	u, err := NewUploader("https://coverage.example.com", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Upload(context.Background(), []byte(sampleReport), UploadMeta{}); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestUploader_RejectsEmptyReport(t *testing.T) {
	u, err := NewUploader("https://coverage.example.com", "tok")
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Upload(context.Background(), nil, UploadMeta{}); err == nil {
		t.Fatal("expected error for empty report")
	}
}

func TestNewUploader_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "not a url"} {
		if _, err := NewUploader(raw, "tok"); err == nil {
			t.Errorf("NewUploader(%q): expected error", raw)
		}
	}
}
