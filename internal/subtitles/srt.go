package subtitles

import (
	"fmt"
	"os"
	"strings"

	"vidsub/internal/timecode"
)

// durationToleranceMs allows trailing cues to overrun the probed duration slightly.
const durationToleranceMs = 5_000

// CountCues returns the number of blank-line separated blocks in an SRT file.
func CountCues(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read srt: %w", err)
	}
	content := strings.TrimSpace(strings.ReplaceAll(string(data), "\r\n", "\n"))
	if content == "" {
		return 0, nil
	}
	count := 0
	for _, block := range strings.Split(content, "\n\n") {
		if strings.TrimSpace(block) != "" {
			count++
		}
	}
	return count, nil
}

// Bounds returns the earliest start and latest end timestamp in milliseconds.
// found is false when no timing line parsed.
func Bounds(path string) (first, last int64, found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, false, fmt.Errorf("read srt: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		parts := strings.Split(line, "-->")
		if len(parts) != 2 {
			continue
		}
		start, errStart := timecode.ParseClock(parts[0])
		end, errEnd := timecode.ParseClock(parts[1])
		if errStart != nil || errEnd != nil {
			continue
		}
		if !found || start < first {
			first = start
		}
		if end > last {
			last = end
		}
		found = true
	}
	return first, last, found, nil
}

// ValidateSRTContent checks a finished SRT file. An empty result means no
// issues. durationMs of zero skips the duration check.
func ValidateSRTContent(path string, durationMs int64) []string {
	var issues []string

	cues, err := CountCues(path)
	if err != nil {
		return append(issues, fmt.Sprintf("read_error: %v", err))
	}
	if cues == 0 {
		return append(issues, "empty_subtitle_file")
	}

	_, last, found, err := Bounds(path)
	switch {
	case err != nil:
		issues = append(issues, fmt.Sprintf("timestamp_parse_error: %v", err))
	case !found:
		issues = append(issues, "no_valid_timestamps")
	case durationMs > 0 && last > durationMs+durationToleranceMs:
		issues = append(issues, fmt.Sprintf("cue_beyond_duration: last=%s duration=%s",
			timecode.FormatDuration(last), timecode.FormatDuration(durationMs)))
	}
	return issues
}
