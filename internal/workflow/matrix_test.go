package workflow

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func parseMatrix(t *testing.T, src string) *Matrix {
	t.Helper()
	var m Matrix
	if err := yaml.Unmarshal([]byte(src), &m); err != nil {
		t.Fatalf("parse matrix: %v", err)
	}
	return &m
}

const referenceMatrix = `
python:
  - "3.7.14"
  - "3.8.14"
  - "3.9.15"
  - "3.10.7"
  - "3.11.0"
django:
  - "3.2"
  - "4.0"
  - "4.1"
exclude:
  - python: "3.7.14"
    django: "4.0"
  - python: "3.7.14"
    django: "4.1"
`

func TestMatrixExpand_ReferenceShape(t *testing.T) {
	m := parseMatrix(t, referenceMatrix)

	cells, err := m.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	// 5 x 3 minus the two declared exclusions.
	if len(cells) != 13 {
		t.Fatalf("expected 13 cells, got %d", len(cells))
	}

	seen := make(map[string]bool, len(cells))
	for _, c := range cells {
		seen[c.ID()] = true
	}
	for _, excluded := range []string{
		"python=3.7.14, django=4.0",
		"python=3.7.14, django=4.1",
	} {
		if seen[excluded] {
			t.Errorf("excluded cell %q was scheduled", excluded)
		}
	}
	if !seen["python=3.7.14, django=3.2"] {
		t.Error("cell python=3.7.14, django=3.2 should survive the exclusions")
	}
	if !seen["python=3.10.7, django=4.1"] {
		t.Error("designated coverage cell missing from expansion")
	}
}

func TestMatrixExpand_DeterministicOrder(t *testing.T) {
	m := parseMatrix(t, referenceMatrix)

	cells, err := m.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	// First declared axis varies slowest.
	want := []string{
		"python=3.7.14, django=3.2",
		"python=3.8.14, django=3.2",
		"python=3.8.14, django=4.0",
	}
	got := []string{cells[0].ID(), cells[1].ID(), cells[2].ID()}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cell %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMatrixExpand_ValuesStayRawStrings(t *testing.T) {
	m := parseMatrix(t, `
django:
  - 4.0
  - 4.10
`)
	cells, err := m.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got := cells[0].Get("django"); got != "4.0" {
		t.Errorf("version scalar mangled: got %q, want \"4.0\"", got)
	}
	if got := cells[1].Get("django"); got != "4.10" {
		t.Errorf("version scalar mangled: got %q, want \"4.10\"", got)
	}
}

func TestMatrixExpand_ExcludeUndeclaredAxis(t *testing.T) {
	m := parseMatrix(t, `
python:
  - "3.10.7"
exclude:
  - rust: "1.64"
`)
	if _, err := m.Expand(); err == nil {
		t.Fatal("expected error for exclude referencing undeclared axis")
	} else if !strings.Contains(err.Error(), "undeclared axis") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMatrixExpand_IncludeAugmentsMatchingCells(t *testing.T) {
	m := parseMatrix(t, `
python:
  - "3.10.7"
  - "3.11.0"
include:
  - python: "3.11.0"
    experimental: "true"
`)
	cells, err := m.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(cells))
	}
	if got := cells[1].Get("experimental"); got != "true" {
		t.Errorf("include did not augment matching cell: experimental=%q", got)
	}
	if got := cells[0].Get("experimental"); got != "" {
		t.Errorf("include leaked into non-matching cell: experimental=%q", got)
	}
}

func TestMatrixExpand_IncludeAppendsNewCell(t *testing.T) {
	m := parseMatrix(t, `
python:
  - "3.10.7"
include:
  - python: "3.12.0"
`)
	cells, err := m.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(cells) != 2 {
		t.Fatalf("expected appended cell, got %d cells", len(cells))
	}
	if got := cells[1].Get("python"); got != "3.12.0" {
		t.Errorf("appended cell python=%q", got)
	}
}

func TestMatrixExpand_EmptyAxis(t *testing.T) {
	m := &Matrix{
		Axes:   []string{"python"},
		Values: map[string][]string{"python": nil},
	}
	if _, err := m.Expand(); err == nil {
		t.Fatal("expected error for axis with no values")
	}
}

func TestMatrix_DuplicateAxisRejected(t *testing.T) {
	var m Matrix
	err := yaml.Unmarshal([]byte("python:\n  - \"3.10\"\npython:\n  - \"3.11\"\n"), &m)
	if err == nil {
		t.Fatal("expected duplicate axis to be rejected")
	}
}
