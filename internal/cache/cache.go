// Package cache stores provisioned environments keyed by composite cache
// keys, so a job can skip provisioning when an identical environment was
// already built.
//
// A key is an opaque string assembled by the workflow, typically
// "<prefix>-<runtime version>-<hashFiles(lockfile)>-<epoch>"; bumping the
// trailing epoch integer forces invalidation without touching the lockfile.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Entry describes a stored cache entry.
type Entry struct {
	Key      string    `json:"key"`
	Paths    []string  `json:"paths"`
	SavedAt  time.Time `json:"saved_at"`
	SizeByte int64     `json:"size_bytes"`
}

// Store is a filesystem-backed cache.
//
// Layout:
//
//	<root>/<sha(key)[0:2]>/<sha(key)>/
//	  entry.json
//	  data/<mirrored saved paths>
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root directory required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) entryDir(key string) string {
	sum := sha256.Sum256([]byte(key))
	hash := hex.EncodeToString(sum[:])
	return filepath.Join(s.root, hash[:2], hash)
}

// Has reports whether an entry exists for key.
func (s *Store) Has(key string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.entryDir(key), "entry.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat cache entry: %w", err)
	}
	return true, nil
}

// Save stores the given paths (relative to workDir) under key. Saving an
// existing key overwrites it.
func (s *Store) Save(key, workDir string, paths []string) (*Entry, error) {
	if key == "" {
		return nil, fmt.Errorf("cache key required")
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("cache save requires at least one path")
	}

	dir := s.entryDir(key)
	dataDir := filepath.Join(dir, "data")
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear cache entry: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache entry: %w", err)
	}

	entry := &Entry{Key: key, SavedAt: time.Now().UTC()}
	for _, rel := range paths {
		src := filepath.Join(workDir, rel)
		n, err := copyTree(src, filepath.Join(dataDir, rel))
		if err != nil {
			return nil, fmt.Errorf("cache save %q: %w", rel, err)
		}
		entry.Paths = append(entry.Paths, rel)
		entry.SizeByte += n
	}

	raw, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "entry.json"), raw, 0o644); err != nil {
		return nil, fmt.Errorf("write cache entry: %w", err)
	}
	return entry, nil
}

// Restore copies a stored entry's paths back under workDir. It returns
// (entry, true) on a hit and (nil, false) on a miss.
func (s *Store) Restore(key, workDir string) (*Entry, bool, error) {
	dir := s.entryDir(key)
	raw, err := os.ReadFile(filepath.Join(dir, "entry.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}

	dataDir := filepath.Join(dir, "data")
	for _, rel := range entry.Paths {
		if _, err := copyTree(filepath.Join(dataDir, rel), filepath.Join(workDir, rel)); err != nil {
			return nil, false, fmt.Errorf("cache restore %q: %w", rel, err)
		}
	}
	return &entry, true, nil
}

// copyTree copies a file or directory tree and returns the copied byte count.
func copyTree(src, dst string) (int64, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}

	var total int64
	err = filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		n, err := copyFile(path, target, fi.Mode())
		total += n
		return err
	})
	return total, err
}

func copyFile(src, dst string, mode os.FileMode) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}
