package preflight

import (
	"vidsub/internal/config"
)

// Result reports the outcome of a single preflight check. Warning marks a
// passed check the user should still hear about.
type Result struct {
	Name    string
	Passed  bool
	Warning bool
	Detail  string
}

// RunAll executes the checks that precede a run for input.
func RunAll(cfg *config.Config, input string) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckInput(input),
		CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir),
		CheckFreeSpace("Temp space", cfg.Paths.TempDir, minTempFreeBytes),
		CheckModel(cfg.Transcription.Model),
	}
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
