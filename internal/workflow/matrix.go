package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// Cell is a single combination of matrix values.
type Cell struct {
	// Keys holds the value names in presentation order: declared axes first,
	// then any include-only keys in sorted order.
	Keys   []string
	Values map[string]string
}

// ID renders the cell as a stable identifier, e.g. "python=3.10.7, django=4.1".
func (c Cell) ID() string {
	parts := make([]string, 0, len(c.Keys))
	for _, k := range c.Keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, c.Values[k]))
	}
	return strings.Join(parts, ", ")
}

// Get returns the cell value for key, or "" when absent.
func (c Cell) Get(key string) string {
	return c.Values[key]
}

// Expand computes the ordered list of matrix cells: the cross product of the
// declared axes (first axis slowest), minus exclude matches, plus include
// entries.
//
// An exclude entry removes every cell whose values match all of its pairs.
// An include entry whose axis-valued pairs match existing cells augments
// those cells with its remaining pairs; otherwise it is appended as a new
// cell.
func (m *Matrix) Expand() ([]Cell, error) {
	if m == nil {
		return nil, fmt.Errorf("matrix is nil")
	}
	for axis, values := range m.Values {
		if len(values) == 0 {
			return nil, fmt.Errorf("matrix axis %q has no values", axis)
		}
	}

	var cells []Cell
	if len(m.Axes) > 0 {
		cells = []Cell{{}}
		for _, axis := range m.Axes {
			next := make([]Cell, 0, len(cells)*len(m.Values[axis]))
			for _, cell := range cells {
				for _, value := range m.Values[axis] {
					next = append(next, cell.with(axis, value))
				}
			}
			cells = next
		}
	}

	for _, entry := range m.Exclude {
		if len(entry) == 0 {
			return nil, fmt.Errorf("matrix exclude entry is empty")
		}
		for key := range entry {
			if _, ok := m.Values[key]; !ok {
				return nil, fmt.Errorf("matrix exclude references undeclared axis %q", key)
			}
		}
		kept := cells[:0]
		for _, cell := range cells {
			if !cellMatches(cell, entry) {
				kept = append(kept, cell)
			}
		}
		cells = kept
	}

	for _, entry := range m.Include {
		if len(entry) == 0 {
			return nil, fmt.Errorf("matrix include entry is empty")
		}
		axisPairs := make(map[string]string)
		extraKeys := make([]string, 0, len(entry))
		for key, value := range entry {
			if _, ok := m.Values[key]; ok {
				axisPairs[key] = value
			} else {
				extraKeys = append(extraKeys, key)
			}
		}
		sort.Strings(extraKeys)

		matched := false
		if len(axisPairs) > 0 {
			for i := range cells {
				if !cellMatches(cells[i], axisPairs) {
					continue
				}
				matched = true
				for _, key := range extraKeys {
					cells[i] = cells[i].with(key, entry[key])
				}
			}
		}
		if !matched {
			cell := Cell{}
			for _, axis := range m.Axes {
				if value, ok := entry[axis]; ok {
					cell = cell.with(axis, value)
				}
			}
			for _, key := range extraKeys {
				cell = cell.with(key, entry[key])
			}
			cells = append(cells, cell)
		}
	}

	return cells, nil
}

func (c Cell) with(key, value string) Cell {
	out := Cell{
		Keys:   make([]string, 0, len(c.Keys)+1),
		Values: make(map[string]string, len(c.Keys)+1),
	}
	out.Keys = append(out.Keys, c.Keys...)
	for k, v := range c.Values {
		out.Values[k] = v
	}
	if _, exists := out.Values[key]; !exists {
		out.Keys = append(out.Keys, key)
	}
	out.Values[key] = value
	return out
}

func cellMatches(cell Cell, pairs map[string]string) bool {
	for key, value := range pairs {
		if cell.Values[key] != value {
			return false
		}
	}
	return true
}
