package workflow

import (
	"strings"
	"testing"
)

func job(needs ...string) *Job {
	return &Job{
		Needs: StringList(needs),
		Steps: []Step{{Run: "true"}},
	}
}

func TestValidate_NeedsUnknownJob(t *testing.T) {
	wf := &Workflow{Jobs: map[string]*Job{
		"coverage": job("test"),
	}}
	err := wf.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown job") {
		t.Fatalf("expected unknown-job error, got %v", err)
	}
}

func TestValidate_NeedsSelf(t *testing.T) {
	wf := &Workflow{Jobs: map[string]*Job{
		"test": job("test"),
	}}
	err := wf.Validate()
	if err == nil || !strings.Contains(err.Error(), "itself") {
		t.Fatalf("expected self-needs error, got %v", err)
	}
}

func TestValidate_StepMustHaveRunOrUses(t *testing.T) {
	wf := &Workflow{Jobs: map[string]*Job{
		"test": {Steps: []Step{{Name: "noop"}}},
	}}
	if err := wf.Validate(); err == nil {
		t.Fatal("expected error for step with neither run nor uses")
	}

	wf = &Workflow{Jobs: map[string]*Job{
		"test": {Steps: []Step{{Run: "true", Uses: "checkout"}}},
	}}
	if err := wf.Validate(); err == nil {
		t.Fatal("expected error for step with both run and uses")
	}
}

func TestValidate_DuplicateStepID(t *testing.T) {
	wf := &Workflow{Jobs: map[string]*Job{
		"test": {Steps: []Step{
			{ID: "cache", Uses: "cache"},
			{ID: "cache", Run: "true"},
		}},
	}}
	err := wf.Validate()
	if err == nil || !strings.Contains(err.Error(), "duplicate step id") {
		t.Fatalf("expected duplicate step id error, got %v", err)
	}
}

func TestValidate_ExcludeValueMustBeDeclared(t *testing.T) {
	wf := &Workflow{Jobs: map[string]*Job{
		"test": {
			Strategy: &Strategy{Matrix: &Matrix{
				Axes:    []string{"python"},
				Values:  map[string][]string{"python": {"3.10.7"}},
				Exclude: []map[string]string{{"python": "2.7"}},
			}},
			Steps: []Step{{Run: "true"}},
		},
	}}
	err := wf.Validate()
	if err == nil || !strings.Contains(err.Error(), "not declared") {
		t.Fatalf("expected undeclared exclude value error, got %v", err)
	}
}

func TestFindNeedsCycle(t *testing.T) {
	jobs := map[string]*Job{
		"a": job("c"),
		"b": job("a"),
		"c": job("b"),
	}
	cycle := FindNeedsCycle(jobs)
	if len(cycle) == 0 {
		t.Fatal("expected a cycle")
	}
	// The cycle closes on its first element.
	if cycle[0] != cycle[len(cycle)-1] {
		t.Errorf("cycle does not close: %v", cycle)
	}
}

func TestFindNeedsCycle_Acyclic(t *testing.T) {
	jobs := map[string]*Job{
		"linting":  job(),
		"test":     job(),
		"coverage": job("test"),
	}
	if cycle := FindNeedsCycle(jobs); cycle != nil {
		t.Errorf("unexpected cycle: %v", cycle)
	}
}

func TestMergeObjects(t *testing.T) {
	base := map[string]any{
		"name": "CI",
		"tags": []any{"a"},
		"meta": map[string]any{"x": 1},
	}
	overlay := map[string]any{
		"name": "other",
		"tags": []any{"b"},
		"meta": map[string]any{"y": 2},
	}

	out := MergeObjects(base, overlay)

	// First occurrence wins for scalars.
	if out["name"] != "CI" {
		t.Errorf("name = %v", out["name"])
	}
	tags := out["tags"].([]any)
	if len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Errorf("tags = %v", tags)
	}
	meta := out["meta"].(map[string]any)
	if meta["x"] != 1 || meta["y"] != 2 {
		t.Errorf("meta = %v", meta)
	}
}

func TestMergeEnv_LaterLayersWin(t *testing.T) {
	out := MergeEnv(
		map[string]string{"A": "workflow", "B": "workflow"},
		map[string]string{"B": "job"},
		map[string]string{"B": "step", "C": "step"},
	)
	if out["A"] != "workflow" || out["B"] != "step" || out["C"] != "step" {
		t.Errorf("merged env = %v", out)
	}
}
