// Package artifact moves named file bundles between jobs: one job uploads a
// bundle under a name, a dependent job downloads it by that name.
package artifact

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Info describes an uploaded artifact.
type Info struct {
	Name       string    `json:"name"`
	Files      []string  `json:"files"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`

	// UploadedBy records the job instance that produced the bundle.
	UploadedBy string `json:"uploaded_by,omitempty"`
}

// Store is a filesystem-backed artifact store scoped to a single run.
//
// Layout:
//
//	<root>/<name>/
//	  artifact.json
//	  files/<uploaded paths>
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact root directory required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &Store{root: root}, nil
}

// Upload stores the given paths (relative to workDir) under name.
// Uploading the same name twice is an error: duplicate uploads from
// parallel matrix cells are a workflow bug, not a race to tolerate.
func (s *Store) Upload(name, uploadedBy, workDir string, paths []string) (*Info, error) {
	if name == "" {
		return nil, fmt.Errorf("artifact name required")
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("artifact %q: no paths to upload", name)
	}

	dir := filepath.Join(s.root, name)
	if _, err := os.Stat(filepath.Join(dir, "artifact.json")); err == nil {
		return nil, fmt.Errorf("artifact %q already uploaded", name)
	}
	filesDir := filepath.Join(dir, "files")
	if err := os.MkdirAll(filesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	info := &Info{Name: name, UploadedAt: time.Now().UTC(), UploadedBy: uploadedBy}
	for _, rel := range paths {
		src := filepath.Join(workDir, rel)
		n, err := copyInto(src, filepath.Join(filesDir, rel))
		if err != nil {
			return nil, fmt.Errorf("artifact %q: upload %q: %w", name, rel, err)
		}
		info.Files = append(info.Files, rel)
		info.SizeBytes += n
	}
	sort.Strings(info.Files)

	raw, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "artifact.json"), raw, 0o644); err != nil {
		return nil, fmt.Errorf("write artifact metadata: %w", err)
	}
	return info, nil
}

// Download copies the named artifact's files into dstDir.
func (s *Store) Download(name, dstDir string) (*Info, error) {
	info, err := s.Stat(name)
	if err != nil {
		return nil, err
	}
	filesDir := filepath.Join(s.root, name, "files")
	for _, rel := range info.Files {
		if _, err := copyInto(filepath.Join(filesDir, rel), filepath.Join(dstDir, rel)); err != nil {
			return nil, fmt.Errorf("artifact %q: download %q: %w", name, rel, err)
		}
	}
	return info, nil
}

// Stat returns metadata for a named artifact.
func (s *Store) Stat(name string) (*Info, error) {
	raw, err := os.ReadFile(filepath.Join(s.root, name, "artifact.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact %q not found", name)
		}
		return nil, fmt.Errorf("read artifact metadata: %w", err)
	}
	var info Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode artifact metadata: %w", err)
	}
	return &info, nil
}

// List returns every uploaded artifact, sorted by name.
func (s *Store) List() ([]*Info, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	var out []*Info
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := s.Stat(e.Name())
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Path returns the on-disk location of a stored file inside an artifact.
func (s *Store) Path(name, file string) string {
	return filepath.Join(s.root, name, "files", file)
}

func copyInto(src, dst string) (int64, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		var total int64
		err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			n, err := copyInto(path, filepath.Join(dst, rel))
			total += n
			return err
		})
		return total, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}
