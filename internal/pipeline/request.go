package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidsub/internal/services"
)

// VideoExtensions lists the containers accepted from drag-and-drop and the watcher.
var VideoExtensions = []string{".mp4", ".avi", ".mkv", ".mov", ".wmv"}

// IsVideoFile reports whether path has one of VideoExtensions (case-insensitive).
func IsVideoFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range VideoExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// Request describes one run.
type Request struct {
	Input string `json:"input"`
	SRT   bool   `json:"srt"`
	TXT   bool   `json:"txt"`
	// OutputDir overrides the input's directory for the subtitle outputs.
	OutputDir string `json:"output_dir,omitempty"`
}

// Validate rejects requests that must not start any process.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Input) == "" {
		return services.Wrap(services.ErrValidation, "", "start", "no input video selected", nil)
	}
	if !r.SRT && !r.TXT {
		return services.Wrap(services.ErrValidation, "", "start", "select at least one output format", nil)
	}
	return nil
}

// Paths are the files a run reads and writes. Fixed at start.
type Paths struct {
	Subtitle string `json:"subtitle"`
	Text     string `json:"text"`
	Wave     string `json:"wave"`
}

// OutputPaths derives the subtitle and text paths: the output directory (or
// the input's own directory) plus the input name without its last extension.
func OutputPaths(input, outputDir string) (subtitle, text string) {
	dir := strings.TrimSpace(outputDir)
	if dir == "" {
		dir = filepath.Dir(input)
	}
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, base+".srt"), filepath.Join(dir, base+".txt")
}

// TempWavePath returns temp_audio_<yyyyMMdd_HHmmss>.wav in tempDir, adding a
// numeric suffix while the name is taken.
func TempWavePath(tempDir string, now time.Time) (string, error) {
	stem := "temp_audio_" + now.Format("20060102_150405")
	candidate := filepath.Join(tempDir, stem+".wav")
	for n := 1; ; n++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat temp wave: %w", err)
		}
		if n > 1000 {
			return "", fmt.Errorf("no free temp wave name for %s", stem)
		}
		candidate = filepath.Join(tempDir, fmt.Sprintf("%s_%d.wav", stem, n))
	}
}

func derivePaths(req Request, tempDir string, now time.Time) (Paths, error) {
	subtitle, text := OutputPaths(req.Input, req.OutputDir)
	wave, err := TempWavePath(tempDir, now)
	if err != nil {
		return Paths{}, err
	}
	return Paths{Subtitle: subtitle, Text: text, Wave: wave}, nil
}
