package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "artifacts"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func writeWorkFile(t *testing.T, workDir, rel, content string) {
	t.Helper()
	path := filepath.Join(workDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestStore_UploadDownload(t *testing.T) {
	store := newTestStore(t)
	src := t.TempDir()
	writeWorkFile(t, src, "coverage.xml", "<coverage/>")

	info, err := store.Upload("coverage-report", "test (python=3.10.7, django=4.1)", src, []string{"coverage.xml"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if info.UploadedBy != "test (python=3.10.7, django=4.1)" {
		t.Errorf("UploadedBy = %q", info.UploadedBy)
	}

	dst := t.TempDir()
	got, err := store.Download("coverage-report", dst)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(got.Files) != 1 || got.Files[0] != "coverage.xml" {
		t.Errorf("Files = %v", got.Files)
	}
	raw, err := os.ReadFile(filepath.Join(dst, "coverage.xml"))
	if err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}
	if string(raw) != "<coverage/>" {
		t.Errorf("downloaded content = %q", raw)
	}
}

// A second upload under the same name is a workflow bug (two matrix cells
// both matched the upload gate), so the store must reject it.
func TestStore_DuplicateUploadRejected(t *testing.T) {
	store := newTestStore(t)
	src := t.TempDir()
	writeWorkFile(t, src, "coverage.xml", "<coverage/>")

	if _, err := store.Upload("coverage-report", "cell-a", src, []string{"coverage.xml"}); err != nil {
		t.Fatalf("first Upload: %v", err)
	}
	_, err := store.Upload("coverage-report", "cell-b", src, []string{"coverage.xml"})
	if err == nil {
		t.Fatal("expected duplicate upload to fail")
	}
	if !strings.Contains(err.Error(), "already uploaded") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStore_DownloadUnknown(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Download("nope", t.TempDir()); err == nil {
		t.Fatal("expected error for unknown artifact")
	}
}

func TestStore_List(t *testing.T) {
	store := newTestStore(t)
	src := t.TempDir()
	writeWorkFile(t, src, "a.txt", "a")
	writeWorkFile(t, src, "b.txt", "b")

	if _, err := store.Upload("bundle-b", "job", src, []string{"b.txt"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Upload("bundle-a", "job", src, []string{"a.txt"}); err != nil {
		t.Fatal(err)
	}

	infos, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(infos))
	}
	if infos[0].Name != "bundle-a" || infos[1].Name != "bundle-b" {
		t.Errorf("list order = %s, %s", infos[0].Name, infos[1].Name)
	}
}

func TestStore_Stat(t *testing.T) {
	store := newTestStore(t)
	src := t.TempDir()
	writeWorkFile(t, src, "coverage.xml", "<coverage/>")
	if _, err := store.Upload("coverage-report", "job", src, []string{"coverage.xml"}); err != nil {
		t.Fatal(err)
	}

	info, err := store.Stat("coverage-report")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Name != "coverage-report" {
		t.Errorf("Name = %q", info.Name)
	}
	if _, err := store.Stat("nope"); err == nil {
		t.Error("expected error for unknown artifact")
	}
}
