// Package coverage parses machine-readable coverage reports and forwards
// them to an external reporting service.
package coverage

import (
	"encoding/xml"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
)

// Report is the parsed form of a Cobertura-style coverage XML file, the
// machine-readable report a test step produces.
type Report struct {
	XMLName       xml.Name  `xml:"coverage"`
	LineRate      float64   `xml:"line-rate,attr"`
	BranchRate    float64   `xml:"branch-rate,attr"`
	LinesValid    int64     `xml:"lines-valid,attr"`
	LinesCovered  int64     `xml:"lines-covered,attr"`
	TimestampUnix int64     `xml:"timestamp,attr"`
	Packages      []Package `xml:"packages>package"`
}

type Package struct {
	Name     string  `xml:"name,attr"`
	LineRate float64 `xml:"line-rate,attr"`
}

// Parse decodes a coverage XML document.
func Parse(raw []byte) (*Report, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("coverage report is empty")
	}
	var r Report
	if err := xml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parse coverage report: %w", err)
	}
	if r.LineRate < 0 || r.LineRate > 1 {
		return nil, fmt.Errorf("coverage line-rate %v out of range [0,1]", r.LineRate)
	}
	return &r, nil
}

// ParseFile decodes a coverage XML file from disk.
func ParseFile(path string) (*Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read coverage report %q: %w", path, err)
	}
	return Parse(raw)
}

// Percent returns the total line coverage as a percentage.
func (r *Report) Percent() float64 {
	return r.LineRate * 100
}

// Table renders the human-readable form of the report: one line per package
// plus a total, sorted by package name.
func (r *Report) Table() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)

	pkgs := append([]Package(nil), r.Packages...)
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })
	for _, p := range pkgs {
		fmt.Fprintf(w, "%s\t%.1f%%\n", p.Name, p.LineRate*100)
	}
	fmt.Fprintf(w, "TOTAL\t%.1f%%\n", r.Percent())
	_ = w.Flush()
	return b.String()
}
