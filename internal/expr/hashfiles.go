package expr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// HashFiles implements the hashFiles() workflow function: a SHA-256 digest
// over the contents of every file matching the given globs, in sorted path
// order so the result is stable across runs.
//
// When no file matches, the result is the empty string (a cache key built
// from a missing lockfile degrades instead of erroring).
func HashFiles(baseDir string, globs ...string) (string, error) {
	if len(globs) == 0 {
		return "", fmt.Errorf("hashFiles requires at least one pattern")
	}

	var paths []string
	for _, glob := range globs {
		pattern := glob
		if baseDir != "" && !filepath.IsAbs(glob) {
			pattern = filepath.Join(baseDir, glob)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return "", fmt.Errorf("hashFiles(%q): %w", glob, err)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	h := sha256.New()
	hashed := 0
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("hashFiles: open %q: %w", path, err)
		}
		if _, err := io.Copy(h, f); err != nil {
			f.Close()
			return "", fmt.Errorf("hashFiles: read %q: %w", path, err)
		}
		f.Close()
		hashed++
	}
	if hashed == 0 {
		return "", nil
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
