// Package expr implements the small expression language used inside
// workflow files: ${{ ... }} interpolation in strings and boolean `if:`
// conditions.
package expr

import "strings"

// Context supplies the values expressions can reference.
//
// Unknown references resolve to the empty string rather than erroring, so a
// workflow can probe optional values (matching hosted-CI behavior).
type Context struct {
	// Matrix holds the current matrix cell values (matrix.<axis>).
	Matrix map[string]string

	// Env holds the merged environment (env.<name>).
	Env map[string]string

	// Secrets holds run secrets (secrets.<name>).
	Secrets map[string]string

	// Needs maps needed job IDs to their result string, "success" or
	// "failure" (needs.<job>.result).
	Needs map[string]string

	// Steps maps step IDs to their outputs (steps.<id>.outputs.<key>).
	Steps map[string]map[string]string

	// AllNeedsSucceeded backs the success() and failure() functions.
	AllNeedsSucceeded bool

	// BaseDir anchors relative globs passed to hashFiles().
	BaseDir string
}

// resolve looks up a dotted reference like "matrix.python" or
// "steps.cache.outputs.cache-hit". Missing values yield "".
func (c *Context) resolve(ref string) string {
	if c == nil {
		return ""
	}
	parts := strings.Split(ref, ".")
	switch parts[0] {
	case "matrix":
		if len(parts) == 2 {
			return c.Matrix[parts[1]]
		}
	case "env":
		if len(parts) == 2 {
			return c.Env[parts[1]]
		}
	case "secrets":
		if len(parts) == 2 {
			return c.Secrets[parts[1]]
		}
	case "needs":
		if len(parts) == 3 && parts[2] == "result" {
			return c.Needs[parts[1]]
		}
	case "steps":
		if len(parts) == 4 && parts[2] == "outputs" {
			return c.Steps[parts[1]][parts[3]]
		}
	case "true", "false":
		if len(parts) == 1 {
			return parts[0]
		}
	}
	return ""
}
