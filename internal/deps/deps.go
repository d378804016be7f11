package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Requirement defines an external dependency vidsub relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Commands are resolved with Resolve, so tools shipped next to the vidsub
// binary count as available.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := Resolve(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Resolve locates a tool. Paths containing a separator are used as given.
// Bare names are looked up in the directory of the running executable first
// and then on PATH.
func Resolve(command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", fmt.Errorf("command not configured")
	}
	if strings.ContainsRune(command, os.PathSeparator) || strings.Contains(command, "/") {
		info, err := os.Stat(command)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", command, err)
		}
		if !isExecutable(info) {
			return "", fmt.Errorf("%s is not executable", command)
		}
		return command, nil
	}
	if dir := executableDir(); dir != "" {
		if candidate, ok := sidecarCandidate(dir, command); ok {
			return candidate, nil
		}
	}
	return exec.LookPath(command)
}

// ResolveOrName returns the resolved path, or the bare command when it cannot
// be found. Launching the bare name then surfaces the failure as a normal
// launch error.
func ResolveOrName(command string) string {
	if resolved, err := Resolve(command); err == nil {
		return resolved
	}
	return strings.TrimSpace(command)
}

// executableDir is swapped in tests.
var executableDir = func() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

func sidecarCandidate(dir, name string) (string, bool) {
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		name += ".exe"
	}
	candidate := filepath.Join(dir, name)
	info, err := os.Stat(candidate)
	if err != nil || !isExecutable(info) {
		return "", false
	}
	return candidate, true
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
