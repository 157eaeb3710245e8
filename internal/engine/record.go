package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// RunRecord is the persisted summary of a finished run, written to
// <state-dir>/runs/<run-id>/run.json. The status API serves these records.
type RunRecord struct {
	ID         string           `json:"id"`
	Workflow   string           `json:"workflow"`
	Event      string           `json:"event"`
	Branch     string           `json:"branch,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	ExitCode   int              `json:"exit_code"`
	Instances  []InstanceResult `json:"instances"`
}

// RunDir returns the per-run state directory.
func RunDir(stateDir, runID string) string {
	return filepath.Join(stateDir, "runs", runID)
}

// CacheDir returns the cache store root, shared across runs so entries
// survive between invocations.
func CacheDir(stateDir string) string {
	return filepath.Join(stateDir, "cache")
}

// ArtifactDir returns the per-run artifact store root.
func ArtifactDir(stateDir, runID string) string {
	return filepath.Join(RunDir(stateDir, runID), "artifacts")
}

// WorkspaceDir returns the per-run workspace root.
func WorkspaceDir(stateDir, runID string) string {
	return filepath.Join(RunDir(stateDir, runID), "workspaces")
}

func WriteRunRecord(stateDir string, rec *RunRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("run record requires an ID")
	}
	dir := RunDir(stateDir, rec.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "run.json"), raw, 0o644); err != nil {
		return fmt.Errorf("write run record: %w", err)
	}
	return nil
}

func ReadRunRecord(stateDir, runID string) (*RunRecord, error) {
	raw, err := os.ReadFile(filepath.Join(RunDir(stateDir, runID), "run.json"))
	if err != nil {
		return nil, err
	}
	var rec RunRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode run record %s: %w", runID, err)
	}
	return &rec, nil
}

// ListRunRecords returns every persisted run, newest first. Directories
// without a readable run.json (e.g. a run in flight) are skipped.
func ListRunRecords(stateDir string) ([]*RunRecord, error) {
	entries, err := os.ReadDir(filepath.Join(stateDir, "runs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []*RunRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := ReadRunRecord(stateDir, entry.Name())
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}
