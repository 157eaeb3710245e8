package checks

import (
	"context"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/skarzi/matrixci/internal/rules"
	"github.com/skarzi/matrixci/internal/workflow"
)

func parseWorkflow(t *testing.T, src string) *workflow.Workflow {
	t.Helper()
	var wf workflow.Workflow
	if err := yaml.Unmarshal([]byte(src), &wf); err != nil {
		t.Fatalf("parse workflow: %v", err)
	}
	return &wf
}

func evaluate(t *testing.T, r rules.Rule, src string) []rules.Result {
	t.Helper()
	results, err := r.Evaluate(context.Background(), parseWorkflow(t, src))
	if err != nil {
		t.Fatalf("%s: Evaluate: %v", r.ID(), err)
	}
	if len(results) == 0 {
		t.Fatalf("%s: no results", r.ID())
	}
	return results
}

func countStatus(results []rules.Result, status rules.Status) int {
	n := 0
	for _, res := range results {
		if res.Status == status {
			n++
		}
	}
	return n
}

const gatedUploadWorkflow = `
name: ci
jobs:
  test:
    strategy:
      matrix:
        python: ["3.10.7", "3.11.0"]
        django: ["4.0", "4.1"]
    steps:
      - run: pytest
      - uses: upload-artifact
        if: matrix.python == '3.10.7' && matrix.django == '4.1'
        with:
          name: coverage-report
          path: coverage.xml
`

func TestArtifactUploadGated_Pass(t *testing.T) {
	results := evaluate(t, &ArtifactUploadGatedRule{}, gatedUploadWorkflow)
	if countStatus(results, rules.StatusFail) != 0 {
		t.Fatalf("unexpected failures: %+v", results)
	}
}

func TestArtifactUploadGated_NoCondition(t *testing.T) {
	results := evaluate(t, &ArtifactUploadGatedRule{}, `
name: ci
jobs:
  test:
    strategy:
      matrix:
        python: ["3.10.7", "3.11.0"]
    steps:
      - uses: upload-artifact
        with:
          name: coverage-report
`)
	if countStatus(results, rules.StatusFail) != 1 {
		t.Fatalf("results = %+v", results)
	}
	if !strings.Contains(results[0].Message, "no condition") {
		t.Errorf("message = %q", results[0].Message)
	}
}

func TestArtifactUploadGated_ConditionMatchesSeveralCells(t *testing.T) {
	results := evaluate(t, &ArtifactUploadGatedRule{}, `
name: ci
jobs:
  test:
    strategy:
      matrix:
        python: ["3.10.7"]
        django: ["4.0", "4.1"]
    steps:
      - uses: upload-artifact
        if: matrix.python == '3.10.7'
        with:
          name: coverage-report
`)
	if countStatus(results, rules.StatusFail) != 1 {
		t.Fatalf("results = %+v", results)
	}
	if !strings.Contains(results[0].Message, "2 matrix cells") {
		t.Errorf("message = %q", results[0].Message)
	}
	if results[0].Evidence["matching_cells"] == "" {
		t.Error("expected matching cells in evidence")
	}
}

func TestArtifactUploadGated_ConditionMatchesNoCell(t *testing.T) {
	results := evaluate(t, &ArtifactUploadGatedRule{}, `
name: ci
jobs:
  test:
    strategy:
      matrix:
        python: ["3.10.7"]
    steps:
      - uses: upload-artifact
        if: matrix.python == '2.7'
        with:
          name: coverage-report
`)
	if countStatus(results, rules.StatusFail) != 1 {
		t.Fatalf("results = %+v", results)
	}
	if !strings.Contains(results[0].Message, "matches no matrix cell") {
		t.Errorf("message = %q", results[0].Message)
	}
}

func TestArtifactUploadGated_IgnoresNonMatrixJobs(t *testing.T) {
	results := evaluate(t, &ArtifactUploadGatedRule{}, `
name: ci
jobs:
  build:
    steps:
      - uses: upload-artifact
        with:
          name: dist
`)
	if results[0].Status != rules.StatusPass {
		t.Fatalf("results = %+v", results)
	}
}

func TestCacheKeyComplete(t *testing.T) {
	cases := []struct {
		name string
		key  string
		want rules.Status
	}{
		{
			name: "hash and matrix version",
			key:  "venv-${{ matrix.python }}-${{ hashFiles('poetry.lock') }}-1",
			want: rules.StatusPass,
		},
		{
			name: "hash and env version",
			key:  "lint-venv-${{ env.PYTHON_VERSION }}-${{ hashFiles('poetry.lock') }}-1",
			want: rules.StatusPass,
		},
		{
			name: "literal only",
			key:  "venv-v1",
			want: rules.StatusFail,
		},
		{
			name: "missing hash",
			key:  "venv-${{ matrix.python }}-1",
			want: rules.StatusFail,
		},
		{
			name: "missing version",
			key:  "venv-${{ hashFiles('poetry.lock') }}",
			want: rules.StatusFail,
		},
	}
	for _, tc := range cases {
		results := evaluate(t, &CacheKeyCompleteRule{}, `
name: ci
jobs:
  test:
    steps:
      - uses: cache
        with:
          path: .venv
          key: `+`"`+tc.key+`"`+"\n")
		if results[0].Status != tc.want {
			t.Errorf("%s: status = %s, want %s (%s)", tc.name, results[0].Status, tc.want, results[0].Message)
		}
	}
}

func TestCacheKeyComplete_MissingKey(t *testing.T) {
	results := evaluate(t, &CacheKeyCompleteRule{}, `
name: ci
jobs:
  test:
    steps:
      - uses: cache
        with:
          path: .venv
`)
	if results[0].Status != rules.StatusFail || !strings.Contains(results[0].Message, "no key") {
		t.Fatalf("results = %+v", results)
	}
}

func TestMatrixExcludesDeclared(t *testing.T) {
	results := evaluate(t, &MatrixExcludesDeclaredRule{}, `
name: ci
jobs:
  test:
    strategy:
      matrix:
        python: ["3.7.14", "3.10.7"]
        django: ["4.0", "4.1"]
        exclude:
          - python: "3.7.14"
            django: "4.0"
`)
	if results[0].Status != rules.StatusPass {
		t.Fatalf("results = %+v", results)
	}
}

func TestMatrixExcludesDeclared_UnknownValue(t *testing.T) {
	results := evaluate(t, &MatrixExcludesDeclaredRule{}, `
name: ci
jobs:
  test:
    strategy:
      matrix:
        python: ["3.10.7"]
        exclude:
          - python: "3.10"
`)
	if countStatus(results, rules.StatusFail) != 1 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Evidence["value"] != "3.10" {
		t.Errorf("evidence = %v", results[0].Evidence)
	}
}

func TestMatrixExcludesDeclared_UnknownAxis(t *testing.T) {
	results := evaluate(t, &MatrixExcludesDeclaredRule{}, `
name: ci
jobs:
  test:
    strategy:
      matrix:
        python: ["3.10.7"]
        exclude:
          - pyhton: "3.10.7"
`)
	if countStatus(results, rules.StatusFail) != 1 {
		t.Fatalf("results = %+v", results)
	}
	if !strings.Contains(results[0].Message, "undeclared axis") {
		t.Errorf("message = %q", results[0].Message)
	}
}

func TestNeedsResolvable(t *testing.T) {
	results := evaluate(t, &NeedsResolvableRule{}, `
name: ci
jobs:
  test:
    steps: [{run: pytest}]
  coverage:
    needs: test
    steps: [{run: upload}]
`)
	if countStatus(results, rules.StatusFail) != 0 {
		t.Fatalf("results = %+v", results)
	}
}

func TestNeedsResolvable_UnknownJob(t *testing.T) {
	results := evaluate(t, &NeedsResolvableRule{}, `
name: ci
jobs:
  coverage:
    needs: tets
    steps: [{run: upload}]
`)
	if countStatus(results, rules.StatusFail) != 1 {
		t.Fatalf("results = %+v", results)
	}
	if !strings.Contains(results[0].Message, `"tets"`) {
		t.Errorf("message = %q", results[0].Message)
	}
}

func TestNeedsAcyclic(t *testing.T) {
	results := evaluate(t, &NeedsAcyclicRule{}, `
name: ci
jobs:
  a:
    needs: b
    steps: [{run: "true"}]
  b:
    needs: a
    steps: [{run: "true"}]
`)
	if results[0].Status != rules.StatusFail {
		t.Fatalf("results = %+v", results)
	}
	if !strings.Contains(results[0].Message, "->") {
		t.Errorf("message = %q", results[0].Message)
	}

	results = evaluate(t, &NeedsAcyclicRule{}, `
name: ci
jobs:
  a:
    steps: [{run: "true"}]
  b:
    needs: a
    steps: [{run: "true"}]
`)
	if results[0].Status != rules.StatusPass {
		t.Fatalf("results = %+v", results)
	}
}

func TestPushTriggerBranches(t *testing.T) {
	results := evaluate(t, &PushTriggerBranchesRule{}, `
name: ci
on:
  push:
    branches: [master]
jobs:
  test:
    steps: [{run: pytest}]
`)
	if results[0].Status != rules.StatusPass {
		t.Fatalf("results = %+v", results)
	}

	results = evaluate(t, &PushTriggerBranchesRule{}, `
name: ci
on:
  push: {}
jobs:
  test:
    steps: [{run: pytest}]
`)
	if results[0].Status != rules.StatusFail {
		t.Fatalf("results = %+v", results)
	}
}

func TestSecretsNotInlined(t *testing.T) {
	results := evaluate(t, &SecretsNotInlinedRule{}, `
name: ci
jobs:
  coverage:
    steps:
      - uses: coverage-upload
        with:
          token: ${{ secrets.CODECOV_TOKEN }}
`)
	if results[0].Status != rules.StatusPass {
		t.Fatalf("results = %+v", results)
	}
}

func TestSecretsNotInlined_LiteralToken(t *testing.T) {
	results := evaluate(t, &SecretsNotInlinedRule{}, `
name: ci
jobs:
  coverage:
    steps:
      - uses: coverage-upload
        with:
          token: c0dec0vaaaabbbbccccdddd11112222
`)
	if results[0].Status != rules.StatusFail {
		t.Fatalf("results = %+v", results)
	}
	if !strings.Contains(results[0].Message, "literal credential") {
		t.Errorf("message = %q", results[0].Message)
	}
	if strings.Contains(results[0].Message, "c0dec0v") {
		t.Error("message leaks the credential value")
	}
}

func TestSecretsNotInlined_IgnoresNonTokenParams(t *testing.T) {
	results := evaluate(t, &SecretsNotInlinedRule{}, `
name: ci
jobs:
  coverage:
    steps:
      - uses: coverage-upload
        with:
          url: https://coverage.example.com
          file: coverage.xml
`)
	if results[0].Status != rules.StatusPass {
		t.Fatalf("results = %+v", results)
	}
}
