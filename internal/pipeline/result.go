package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// OutputFile describes one enabled sink after the run.
type OutputFile struct {
	Kind   string   `json:"kind"`
	Path   string   `json:"path"`
	Exists bool     `json:"exists"`
	Size   int64    `json:"size"`
	Cues   int      `json:"cues,omitempty"`
	Issues []string `json:"issues,omitempty"`
}

// Result is the outcome of a finished run.
type Result struct {
	RunID    string       `json:"run_id"`
	Request  Request      `json:"request"`
	Status   Status       `json:"status"`
	Outputs  []OutputFile `json:"outputs,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
	Progress Progress     `json:"progress"`
	Err      error        `json:"-"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
}

// Elapsed is the wall time of the run.
func (r Result) Elapsed() time.Duration {
	if r.Finished.IsZero() || r.Started.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// ErrorMessage returns the failure text, or "".
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Produced returns the paths of outputs verified to exist.
func (r Result) Produced() []string {
	var paths []string
	for _, out := range r.Outputs {
		if out.Exists {
			paths = append(paths, out.Path)
		}
	}
	return paths
}

// Summary renders the user-facing outcome. Completed runs list each enabled
// output, noting the ones that were not generated.
func (r Result) Summary() string {
	switch r.Status {
	case StatusCancelled:
		return "Stopped."
	case StatusFailed:
		return fmt.Sprintf("Failed: %s", r.ErrorMessage())
	case StatusCompleted:
	default:
		return r.Status.Label()
	}

	var b strings.Builder
	b.WriteString("Completed.")
	for _, out := range r.Outputs {
		label := strings.ToUpper(out.Kind)
		if out.Exists {
			fmt.Fprintf(&b, "\n%s file: %s", label, out.Path)
		} else {
			fmt.Fprintf(&b, "\n%s file: not generated", label)
		}
	}
	return b.String()
}
