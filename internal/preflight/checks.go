package preflight

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"vidsub/internal/config"
	"vidsub/internal/deps"
	"vidsub/internal/pipeline"
)

// minTempFreeBytes is the free space wanted before extracting a waveform.
// One hour of mono 16 kHz 16-bit audio is roughly 115 MB.
const minTempFreeBytes = 512 << 20

// CheckInput verifies the input video exists, is a regular readable file and
// carries a known video extension. An unknown extension is reported with
// Warning set so callers can choose to continue.
func CheckInput(path string) Result {
	const name = "Input video"
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "no input selected"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	if !pipeline.IsVideoFile(path) {
		return Result{Name: name, Passed: true, Warning: true, Detail: fmt.Sprintf("%s (unrecognized video extension)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, humanize.IBytes(uint64(info.Size())))}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace reports whether path's filesystem has at least minBytes free.
// Low space is a warning, not a failure.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s (%s free)", path, humanize.IBytes(free))
	if free < minBytes {
		return Result{Name: name, Passed: true, Warning: true, Detail: detail + ", low space"}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSystemDeps evaluates the external tools for the given config. Both the
// CLI deps command and the API health endpoint use this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Tools.Extractor,
			Description: "Required for audio extraction",
		},
		{
			Name:        "Transcriber",
			Command:     cfg.Tools.Transcriber,
			Description: "Required for speech-to-text",
		},
	}
	if probe := cfg.ProbeBinary(); probe != cfg.Tools.Extractor {
		requirements = append(requirements, deps.Requirement{
			Name:        "Probe",
			Command:     probe,
			Description: "Reads media duration for progress reporting",
			Optional:    true,
		})
	}
	return deps.CheckBinaries(requirements)
}

// CheckModel verifies the transcription model file when it is given as a path.
// Bare model names are resolved by the transcriber itself.
func CheckModel(model string) Result {
	const name = "Model"
	if !strings.ContainsRune(model, os.PathSeparator) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (resolved by transcriber)", model)}
	}
	info, err := os.Stat(model)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", model, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", model, humanize.IBytes(uint64(info.Size())))}
}
