package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/skarzi/matrixci/internal/coverage"
)

// Builtin step names usable in `uses:`.
const (
	StepCheckout         = "checkout"
	StepSetupRuntime     = "setup-runtime"
	StepCache            = "cache"
	StepUploadArtifact   = "upload-artifact"
	StepDownloadArtifact = "download-artifact"
	StepCoverageUpload   = "coverage-upload"
)

func (e *LocalExecutor) runBuiltin(
	ctx context.Context,
	inst *JobInstance,
	name string,
	with map[string]string,
	workDir string,
	pendingSaves *[]cacheSave,
) (outputs map[string]string, message string, err error) {
	switch name {
	case StepCheckout:
		return e.stepCheckout(workDir)
	case StepSetupRuntime:
		return e.stepSetupRuntime(with)
	case StepCache:
		return e.stepCache(with, workDir, pendingSaves)
	case StepUploadArtifact:
		return e.stepUploadArtifact(inst, with, workDir)
	case StepDownloadArtifact:
		return e.stepDownloadArtifact(with, workDir)
	case StepCoverageUpload:
		return e.stepCoverageUpload(ctx, with, workDir)
	default:
		return nil, "", fmt.Errorf("unknown builtin step %q", name)
	}
}

func (e *LocalExecutor) stepCheckout(workDir string) (map[string]string, string, error) {
	if e.SourceDir == "" {
		return nil, "", fmt.Errorf("checkout: no source directory configured")
	}
	n, err := copyDir(e.SourceDir, workDir)
	if err != nil {
		return nil, "", fmt.Errorf("checkout: %w", err)
	}
	return nil, fmt.Sprintf("%d files", n), nil
}

// stepSetupRuntime records the requested runtime; provisioning real
// interpreters is out of scope, so the step publishes the version for later
// steps instead.
func (e *LocalExecutor) stepSetupRuntime(with map[string]string) (map[string]string, string, error) {
	name := with["name"]
	version := with["version"]
	if name == "" || version == "" {
		return nil, "", fmt.Errorf("setup-runtime: `name` and `version` are required")
	}
	outputs := map[string]string{"version": version}
	return outputs, fmt.Sprintf("%s %s", name, version), nil
}

// stepCache restores the keyed entry when present and publishes cache-hit.
// On a miss, the save is deferred until the job body succeeds.
func (e *LocalExecutor) stepCache(with map[string]string, workDir string, pendingSaves *[]cacheSave) (map[string]string, string, error) {
	if e.Cache == nil {
		return nil, "", fmt.Errorf("cache: no cache store configured")
	}
	key := with["key"]
	if key == "" {
		return nil, "", fmt.Errorf("cache: `key` is required")
	}
	paths := splitPathList(with["path"])
	if len(paths) == 0 {
		return nil, "", fmt.Errorf("cache: `path` is required")
	}

	_, hit, err := e.Cache.Restore(key, workDir)
	if err != nil {
		return nil, "", fmt.Errorf("cache restore: %w", err)
	}
	outputs := map[string]string{"cache-hit": fmt.Sprintf("%t", hit)}
	if hit {
		return outputs, fmt.Sprintf("hit: %s", key), nil
	}
	*pendingSaves = append(*pendingSaves, cacheSave{key: key, paths: paths})
	return outputs, fmt.Sprintf("miss: %s", key), nil
}

func (e *LocalExecutor) stepUploadArtifact(inst *JobInstance, with map[string]string, workDir string) (map[string]string, string, error) {
	if e.Artifacts == nil {
		return nil, "", fmt.Errorf("upload-artifact: no artifact store configured")
	}
	name := with["name"]
	if name == "" {
		return nil, "", fmt.Errorf("upload-artifact: `name` is required")
	}
	paths := splitPathList(with["path"])
	if len(paths) == 0 {
		return nil, "", fmt.Errorf("upload-artifact: `path` is required")
	}
	info, err := e.Artifacts.Upload(name, inst.ID, workDir, paths)
	if err != nil {
		return nil, "", err
	}
	return nil, fmt.Sprintf("%s (%d bytes)", info.Name, info.SizeBytes), nil
}

func (e *LocalExecutor) stepDownloadArtifact(with map[string]string, workDir string) (map[string]string, string, error) {
	if e.Artifacts == nil {
		return nil, "", fmt.Errorf("download-artifact: no artifact store configured")
	}
	name := with["name"]
	if name == "" {
		return nil, "", fmt.Errorf("download-artifact: `name` is required")
	}
	dst := workDir
	if sub := with["path"]; sub != "" {
		dst = filepath.Join(workDir, sub)
	}
	info, err := e.Artifacts.Download(name, dst)
	if err != nil {
		return nil, "", err
	}
	return nil, fmt.Sprintf("%s (%d files)", info.Name, len(info.Files)), nil
}

// stepCoverageUpload parses the report and forwards it to the coverage
// service. With `fail_ci_if_error: "false"` an upload error degrades to a
// message instead of failing the step.
func (e *LocalExecutor) stepCoverageUpload(ctx context.Context, with map[string]string, workDir string) (map[string]string, string, error) {
	file := with["file"]
	if file == "" {
		return nil, "", fmt.Errorf("coverage-upload: `file` is required")
	}
	serviceURL := with["url"]
	if serviceURL == "" {
		return nil, "", fmt.Errorf("coverage-upload: `url` is required")
	}
	failCI := with["fail_ci_if_error"] != "false"

	raw, err := os.ReadFile(filepath.Join(workDir, file))
	if err != nil {
		return nil, "", fmt.Errorf("coverage-upload: %w", err)
	}
	report, err := coverage.Parse(raw)
	if err != nil {
		return nil, "", fmt.Errorf("coverage-upload: %w", err)
	}

	uploader, err := coverage.NewUploader(serviceURL, with["token"])
	if err != nil {
		return nil, "", err
	}
	meta := coverage.UploadMeta{
		Repo:   e.Repo,
		Commit: e.Commit,
		Branch: e.Branch,
		RunID:  with["run"],
	}
	if err := uploader.Upload(ctx, raw, meta); err != nil {
		if failCI {
			return nil, "", err
		}
		return nil, fmt.Sprintf("upload failed (ignored): %v", err), nil
	}
	return nil, fmt.Sprintf("uploaded, %.1f%% covered", report.Percent()), nil
}

// runShell executes a script via `sh -c` in workDir. Steps publish outputs by
// appending `name=value` lines to the file named by $MATRIXCI_OUTPUT.
func (e *LocalExecutor) runShell(ctx context.Context, workDir, script string, env map[string]string) (map[string]string, string, error) {
	if e.runCommand != nil {
		out, err := e.runCommand(ctx, workDir, script, flattenEnv(env))
		return nil, out, err
	}

	outFile, err := os.CreateTemp("", "matrixci-output-*")
	if err != nil {
		return nil, "", fmt.Errorf("create output file: %w", err)
	}
	outPath := outFile.Name()
	outFile.Close()
	defer os.Remove(outPath)

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), flattenEnv(env)...)
	cmd.Env = append(cmd.Env, "MATRIXCI_OUTPUT="+outPath)

	raw, err := cmd.CombinedOutput()
	out := string(raw)
	if e.Verbose && out != "" {
		fmt.Fprint(os.Stderr, out)
	}
	if err != nil {
		return nil, out, err
	}

	outputs, err := parseOutputFile(outPath)
	if err != nil {
		return nil, out, err
	}
	return outputs, out, nil
}

func parseOutputFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var outputs map[string]string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if outputs == nil {
			outputs = make(map[string]string)
		}
		outputs[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return outputs, nil
}

func flattenEnv(env map[string]string) []string {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, name+"="+env[name])
	}
	return out
}

func (e *LocalExecutor) prepareWorkspace(instanceID string) (string, error) {
	if e.WorkRoot == "" {
		return "", fmt.Errorf("no workspace root configured")
	}
	dir := filepath.Join(e.WorkRoot, sanitizeID(instanceID))
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear workspace: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

// sanitizeID turns an instance ID into a directory name.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_', r == '=':
			return r
		default:
			return '_'
		}
	}, id)
}

func splitPathList(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == ',' }) {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// copyDir copies a directory tree and returns the copied file count.
// The state directory itself is skipped so a run never recursively copies
// its own workspaces.
func copyDir(src, dst string) (int, error) {
	src = filepath.Clean(src)
	count := 0
	err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if rel != "." && (name == ".git" || name == ".matrixci") {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := copyRegularFile(path, filepath.Join(dst, rel), info.Mode()); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func copyRegularFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
