package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skarzi/matrixci/internal/artifact"
	"github.com/skarzi/matrixci/internal/engine"
)

// seedState writes one finished run with a coverage artifact into a temp
// state directory.
func seedState(t *testing.T) string {
	t.Helper()
	stateDir := t.TempDir()

	rec := &engine.RunRecord{
		ID:        "run-1",
		Workflow:  "CI",
		Event:     "push",
		Branch:    "master",
		StartedAt: time.Now().UTC().Add(-time.Minute),
		Instances: []engine.InstanceResult{
			{InstanceID: "test (python=3.10.7, django=4.1)", JobID: "test", Status: engine.StatusSuccess},
			{InstanceID: "coverage", JobID: "coverage", Status: engine.StatusSuccess},
		},
	}
	if err := engine.WriteRunRecord(stateDir, rec); err != nil {
		t.Fatal(err)
	}

	workDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(workDir, "coverage.xml"), []byte("<coverage/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := artifact.NewStore(engine.ArtifactDir(stateDir, "run-1"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Upload("coverage-report", "test (python=3.10.7, django=4.1)", workDir, []string{"coverage.xml"}); err != nil {
		t.Fatal(err)
	}
	return stateDir
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := NewServer(seedState(t), false)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestServer_Healthz(t *testing.T) {
	ts := newTestServer(t)
	var body map[string]string
	if code := getJSON(t, ts.URL+"/healthz", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestServer_ListRuns(t *testing.T) {
	ts := newTestServer(t)
	var runs []engine.RunRecord
	if code := getJSON(t, ts.URL+"/runs", &runs); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestServer_GetRun(t *testing.T) {
	ts := newTestServer(t)
	var rec engine.RunRecord
	if code := getJSON(t, ts.URL+"/runs/run-1", &rec); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(rec.Instances) != 2 {
		t.Errorf("instances = %+v", rec.Instances)
	}

	if code := getJSON(t, ts.URL+"/runs/run-404", nil); code != http.StatusNotFound {
		t.Errorf("unknown run status = %d", code)
	}
}

func TestServer_ListArtifacts(t *testing.T) {
	ts := newTestServer(t)
	var infos []artifact.Info
	if code := getJSON(t, ts.URL+"/runs/run-1/artifacts", &infos); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(infos) != 1 || infos[0].Name != "coverage-report" {
		t.Fatalf("artifacts = %+v", infos)
	}

	if code := getJSON(t, ts.URL+"/runs/run-404/artifacts", nil); code != http.StatusNotFound {
		t.Errorf("unknown run status = %d", code)
	}
}

func TestServer_GetArtifactFile(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/runs/run-1/artifacts/coverage-report/files/coverage.xml")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if string(raw) != "<coverage/>" {
		t.Errorf("body = %q", raw)
	}

	if code := getJSON(t, ts.URL+"/runs/run-1/artifacts/coverage-report/files/secrets.env", nil); code != http.StatusNotFound {
		t.Errorf("unlisted file status = %d", code)
	}
	if code := getJSON(t, ts.URL+"/runs/run-1/artifacts/nope/files/coverage.xml", nil); code != http.StatusNotFound {
		t.Errorf("unknown artifact status = %d", code)
	}
}

func TestNewServer_RequiresStateDir(t *testing.T) {
	if _, err := NewServer("", false); err == nil {
		t.Fatal("expected error for empty state dir")
	}
}
