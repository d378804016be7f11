package pipeline

import (
	"fmt"
	"strings"

	"vidsub/internal/services"
)

// StageError reports a fatal stage failure: a non-zero exit, an abnormal
// termination or a launch failure.
type StageError struct {
	Stage    Status
	ExitCode int
	Abnormal bool
	// Detail is the launch error or the tail of the tool's stderr.
	Detail string
	Err    error
}

func (e *StageError) Error() string {
	var b strings.Builder
	b.WriteString(e.Stage.Label())
	if e.Abnormal {
		b.WriteString(" terminated abnormally")
	} else {
		fmt.Fprintf(&b, " exited with code %d", e.ExitCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if detail := strings.TrimSpace(e.Detail); detail != "" {
		b.WriteString(" (")
		b.WriteString(lastLine(detail))
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap exposes the external tool marker and the underlying cause.
func (e *StageError) Unwrap() []error {
	if e.Err != nil {
		return []error{services.ErrExternalTool, e.Err}
	}
	return []error{services.ErrExternalTool}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	data  []byte
}

func (t *tailBuffer) Write(p []byte) {
	t.data = append(t.data, p...)
	if over := len(t.data) - t.limit; over > 0 {
		t.data = append(t.data[:0], t.data[over:]...)
	}
}

func (t *tailBuffer) String() string {
	return strings.ToValidUTF8(string(t.data), "")
}
