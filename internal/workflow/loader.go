package workflow

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxTemplateDepth caps recursive step-template resolution. Deeper nesting
// than this is treated as a cycle.
const maxTemplateDepth = 10

// Load reads a workflow definition from a local path or an http(s) URL,
// parses it (JSON for .json sources, YAML otherwise), and resolves step
// templates relative to the source location.
func Load(source string) (*Workflow, error) {
	raw, err := readSource(source)
	if err != nil {
		return nil, fmt.Errorf("read workflow %q: %w", source, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("workflow %q is empty", source)
	}

	var wf Workflow
	if err := unmarshalByExtension(source, raw, &wf); err != nil {
		return nil, fmt.Errorf("parse workflow %q: %w", source, err)
	}

	baseDir := filepath.Dir(source)
	if IsURL(source) {
		baseDir = ""
	}
	for id, job := range wf.Jobs {
		if job == nil {
			return nil, fmt.Errorf("job %q is empty", id)
		}
		resolved, err := resolveTemplates(job.Steps, baseDir, nil, 0)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", id, err)
		}
		job.Steps = resolved
	}

	return &wf, nil
}

// IsURL reports whether the source should be fetched over HTTP rather than
// read from disk.
func IsURL(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func readSource(source string) ([]byte, error) {
	if IsURL(source) {
		resp, err := http.Get(source)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(source)
}

func unmarshalByExtension(source string, raw []byte, v any) error {
	if strings.EqualFold(filepath.Ext(source), ".json") {
		return json.Unmarshal(raw, v)
	}
	return yaml.Unmarshal(raw, v)
}

// stepTemplate is the shape of a reusable step file: either a bare list of
// steps or a mapping with a "steps" key.
type stepTemplate struct {
	Steps []Step `yaml:"steps"`
}

// resolveTemplates splices step templates (`uses: ./path.yml`) into the step
// list. Resolution is recursive; a template referencing itself (directly or
// through another template) is an error, never an infinite loop.
func resolveTemplates(steps []Step, baseDir string, visited map[string]bool, depth int) ([]Step, error) {
	if depth > maxTemplateDepth {
		return nil, fmt.Errorf("step templates nested more than %d levels deep", maxTemplateDepth)
	}

	var out []Step
	for _, step := range steps {
		if !isTemplateRef(step.Uses) {
			out = append(out, step)
			continue
		}

		path := filepath.Join(baseDir, step.Uses)
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		if visited[abs] {
			return nil, fmt.Errorf("step template cycle through %q", step.Uses)
		}

		tmpl, err := loadTemplate(path)
		if err != nil {
			return nil, err
		}

		nextVisited := make(map[string]bool, len(visited)+1)
		for k := range visited {
			nextVisited[k] = true
		}
		nextVisited[abs] = true

		spliced, err := resolveTemplates(tmpl, filepath.Dir(path), nextVisited, depth+1)
		if err != nil {
			return nil, err
		}
		for _, ts := range spliced {
			if len(step.Env) > 0 {
				ts.Env = MergeEnv(ts.Env, step.Env)
			}
			if ts.If == "" {
				ts.If = step.If
			}
			out = append(out, ts)
		}
	}
	return out, nil
}

func isTemplateRef(uses string) bool {
	return strings.HasPrefix(uses, "./") || strings.HasPrefix(uses, "../")
}

func loadTemplate(path string) ([]Step, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if hint := closeTemplateMatches(path); hint != "" {
				return nil, fmt.Errorf("step template %q not found; did you mean one of:%s", path, hint)
			}
		}
		return nil, fmt.Errorf("read step template %q: %w", path, err)
	}

	// Accept both a bare step list and a mapping with a "steps" key.
	var bare []Step
	if err := yaml.Unmarshal(raw, &bare); err == nil && len(bare) > 0 {
		return bare, nil
	}
	var tmpl stepTemplate
	if err := yaml.Unmarshal(raw, &tmpl); err != nil {
		return nil, fmt.Errorf("parse step template %q: %w", path, err)
	}
	if len(tmpl.Steps) == 0 {
		return nil, fmt.Errorf("step template %q contains no steps", path)
	}
	return tmpl.Steps, nil
}

// closeTemplateMatches lists sibling template files as a suggestion when a
// referenced template does not exist.
func closeTemplateMatches(path string) string {
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		return ""
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yml" || ext == ".yaml" || ext == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "\n- %s", n)
	}
	return b.String()
}
