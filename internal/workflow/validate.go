package workflow

import (
	"fmt"
	"sort"
)

// Validate checks structural invariants of a parsed workflow:
// every needs target exists, the needs graph is acyclic, step IDs are unique
// within a job, each step has exactly one of run/uses, and matrix excludes
// and includes only reference declared axis values.
//
// A workflow with zero jobs is valid; it plans to nothing.
func (w *Workflow) Validate() error {
	if w == nil {
		return fmt.Errorf("workflow is nil")
	}

	jobIDs := make([]string, 0, len(w.Jobs))
	for id := range w.Jobs {
		jobIDs = append(jobIDs, id)
	}
	sort.Strings(jobIDs)

	for _, id := range jobIDs {
		job := w.Jobs[id]
		if job == nil {
			return fmt.Errorf("job %q is empty", id)
		}
		for _, need := range job.Needs {
			if _, ok := w.Jobs[need]; !ok {
				return fmt.Errorf("job %q needs unknown job %q", id, need)
			}
			if need == id {
				return fmt.Errorf("job %q needs itself", id)
			}
		}
		if err := validateSteps(id, job.Steps); err != nil {
			return err
		}
		if job.Strategy != nil && job.Strategy.Matrix != nil {
			if err := validateMatrix(id, job.Strategy.Matrix); err != nil {
				return err
			}
		}
	}

	if cycle := FindNeedsCycle(w.Jobs); len(cycle) > 0 {
		return fmt.Errorf("needs cycle: %v", cycle)
	}
	return nil
}

func validateSteps(jobID string, steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("job %q has no steps", jobID)
	}
	seen := make(map[string]bool)
	for i, step := range steps {
		if step.Run == "" && step.Uses == "" {
			return fmt.Errorf("job %q step %d: one of run or uses is required", jobID, i+1)
		}
		if step.Run != "" && step.Uses != "" {
			return fmt.Errorf("job %q step %d: run and uses are mutually exclusive", jobID, i+1)
		}
		if step.ID != "" {
			if seen[step.ID] {
				return fmt.Errorf("job %q: duplicate step id %q", jobID, step.ID)
			}
			seen[step.ID] = true
		}
	}
	return nil
}

func validateMatrix(jobID string, m *Matrix) error {
	if len(m.Axes) == 0 && len(m.Include) == 0 {
		return fmt.Errorf("job %q: matrix declares no axes", jobID)
	}
	for _, axis := range m.Axes {
		if len(m.Values[axis]) == 0 {
			return fmt.Errorf("job %q: matrix axis %q has no values", jobID, axis)
		}
	}
	for _, entry := range m.Exclude {
		if len(entry) == 0 {
			return fmt.Errorf("job %q: empty matrix exclude entry", jobID)
		}
		for key, value := range entry {
			values, ok := m.Values[key]
			if !ok {
				return fmt.Errorf("job %q: matrix exclude references undeclared axis %q", jobID, key)
			}
			if !containsString(values, value) {
				return fmt.Errorf("job %q: matrix exclude value %q is not declared for axis %q", jobID, value, key)
			}
		}
	}
	return nil
}

// FindNeedsCycle runs a DFS over the needs graph and returns one cycle when
// present, in deterministic order.
func FindNeedsCycle(jobs map[string]*Job) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(jobs))

	ids := make([]string, 0, len(jobs))
	for id := range jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var cycle []string
	var visit func(id string, stack []string) bool
	visit = func(id string, stack []string) bool {
		color[id] = gray
		stack = append(stack, id)
		needs := append(StringList(nil), jobs[id].Needs...)
		sort.Strings(needs)
		for _, need := range needs {
			if _, ok := jobs[need]; !ok {
				continue
			}
			switch color[need] {
			case gray:
				for i, s := range stack {
					if s == need {
						cycle = append(append([]string(nil), stack[i:]...), need)
						return true
					}
				}
			case white:
				if visit(need, stack) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, id := range ids {
		if color[id] == white {
			if visit(id, nil) {
				return cycle
			}
		}
	}
	return nil
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
