package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Workflow is the parsed form of a workflow definition file.
type Workflow struct {
	// Name is the display name of the workflow.
	Name string `yaml:"name"`

	// On declares the events that trigger the workflow.
	On Triggers `yaml:"on"`

	// Env is the workflow-level environment, inherited by every job.
	Env map[string]string `yaml:"env"`

	// Jobs maps job IDs to their definitions.
	Jobs map[string]*Job `yaml:"jobs"`
}

// Triggers declares which events run the workflow.
//
// A pull_request trigger matches every pull request event. A push trigger
// matches push events only for the listed branches.
type Triggers struct {
	Push        *PushTrigger        `yaml:"push"`
	PullRequest *PullRequestTrigger `yaml:"pull_request"`
}

type PushTrigger struct {
	Branches []string `yaml:"branches"`
}

type PullRequestTrigger struct {
	Branches []string `yaml:"branches"`
}

// Job is a single workflow job. A job with a matrix strategy fans out into
// one instance per matrix cell.
type Job struct {
	// Name is an optional display name; the job ID is used when empty.
	Name string `yaml:"name"`

	// RunsOn records the requested runner label. The engine runs every job
	// on the local host; the label is carried through for reporting only.
	RunsOn string `yaml:"runs-on"`

	// Needs lists job IDs that must finish before this job starts.
	// Accepts a single ID or a list.
	Needs StringList `yaml:"needs"`

	// If guards the whole job. The default condition requires every needed
	// job to have succeeded.
	If string `yaml:"if"`

	Strategy *Strategy         `yaml:"strategy"`
	Env      map[string]string `yaml:"env"`
	Steps    []Step            `yaml:"steps"`
}

type Strategy struct {
	Matrix *Matrix `yaml:"matrix"`

	// MaxParallel bounds concurrent cells of this job. 0 means no job-level
	// bound beyond the engine's global concurrency.
	MaxParallel int `yaml:"max-parallel"`
}

// Step is a single instruction inside a job. Exactly one of Run or Uses must
// be set: Run executes a shell command, Uses invokes a builtin step or a
// step template file (a path starting with "./").
type Step struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	If   string `yaml:"if"`
	Uses string `yaml:"uses"`
	Run  string `yaml:"run"`

	// With holds parameters for a Uses step.
	With map[string]string `yaml:"with"`

	Env map[string]string `yaml:"env"`

	// ContinueOnError keeps the job going when this step fails.
	ContinueOnError bool `yaml:"continue-on-error"`
}

// DisplayName returns the step name, falling back to the command or action.
func (s Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Uses != "" {
		return s.Uses
	}
	return s.Run
}

// StringList accepts either a single YAML scalar or a sequence of scalars.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value == "" {
			*l = nil
			return nil
		}
		*l = StringList{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make(StringList, 0, len(value.Content))
		for _, n := range value.Content {
			if n.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected scalar list entry", n.Line)
			}
			out = append(out, n.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list of strings", value.Line)
	}
}

// Matrix is a declarative cross product of axis values, with optional
// exclude and include entries.
//
// Axis declaration order and value order are preserved from the source file
// so that expansion is deterministic.
type Matrix struct {
	// Axes lists axis names in declaration order.
	Axes []string

	// Values maps each axis to its declared values, in order.
	Values map[string][]string

	// Exclude removes every cell matching all pairs of an entry.
	Exclude []map[string]string

	// Include appends cells (or augments matching ones) after exclusion.
	Include []map[string]string
}

func (m *Matrix) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: matrix must be a mapping", value.Line)
	}
	m.Values = make(map[string][]string)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode := value.Content[i]
		valNode := value.Content[i+1]
		switch keyNode.Value {
		case "exclude":
			entries, err := decodeMatrixEntries(valNode)
			if err != nil {
				return fmt.Errorf("matrix exclude: %w", err)
			}
			m.Exclude = entries
		case "include":
			entries, err := decodeMatrixEntries(valNode)
			if err != nil {
				return fmt.Errorf("matrix include: %w", err)
			}
			m.Include = entries
		default:
			values, err := decodeScalarList(valNode)
			if err != nil {
				return fmt.Errorf("matrix axis %q: %w", keyNode.Value, err)
			}
			if _, dup := m.Values[keyNode.Value]; dup {
				return fmt.Errorf("matrix axis %q declared twice", keyNode.Value)
			}
			m.Axes = append(m.Axes, keyNode.Value)
			m.Values[keyNode.Value] = values
		}
	}
	return nil
}

// decodeScalarList reads a sequence of scalars as raw strings.
//
// Values are kept as their source text: a version like 4.0 must stay "4.0",
// not become a float.
func decodeScalarList(node *yaml.Node) ([]string, error) {
	if node.Kind == yaml.ScalarNode {
		return []string{node.Value}, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: expected a list", node.Line)
	}
	out := make([]string, 0, len(node.Content))
	for _, n := range node.Content {
		if n.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: expected scalar value", n.Line)
		}
		out = append(out, n.Value)
	}
	return out, nil
}

func decodeMatrixEntries(node *yaml.Node) ([]map[string]string, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: expected a list of mappings", node.Line)
	}
	var out []map[string]string
	for _, entryNode := range node.Content {
		if entryNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: expected a mapping", entryNode.Line)
		}
		entry := make(map[string]string, len(entryNode.Content)/2)
		for i := 0; i+1 < len(entryNode.Content); i += 2 {
			k := entryNode.Content[i]
			v := entryNode.Content[i+1]
			if v.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: expected scalar value for %q", v.Line, k.Value)
			}
			entry[k.Value] = v.Value
		}
		if len(entry) == 0 {
			return nil, fmt.Errorf("line %d: empty entry", entryNode.Line)
		}
		out = append(out, entry)
	}
	return out, nil
}
