// Package timecode converts between the clock formats emitted by the media
// tools (HH:MM:SS.ss), the SRT convention (HH:MM:SS,mmm) and milliseconds.
package timecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ToMillis converts hours, minutes and a fractional seconds string into
// milliseconds. Seconds are rounded to the nearest millisecond.
func ToMillis(hours, minutes, seconds string) (int64, error) {
	h, err := strconv.ParseInt(hours, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hours %q: %w", hours, err)
	}
	m, err := strconv.ParseInt(minutes, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse minutes %q: %w", minutes, err)
	}
	s, err := strconv.ParseFloat(seconds, 64)
	if err != nil {
		return 0, fmt.Errorf("parse seconds %q: %w", seconds, err)
	}
	return h*3_600_000 + m*60_000 + int64(math.Round(s*1000)), nil
}

// ParseClock parses "H+:MM:SS.fff" into milliseconds. A comma decimal
// separator is accepted as well.
func ParseClock(value string) (int64, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(value, ",", "."))
	parts := strings.Split(trimmed, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock %q", value)
	}
	return ToMillis(parts[0], parts[1], parts[2])
}

// FormatDuration renders milliseconds as HH:MM:SS, dropping the fraction.
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// FormatSRT renders milliseconds as HH:MM:SS,mmm.
func FormatSRT(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3_600_000, (ms/60_000)%60, (ms/1000)%60, ms%1000)
}

// DotToComma converts a transcriber timestamp (HH:MM:SS.mmm) to SRT form by
// swapping the decimal separator. The digits are kept verbatim.
func DotToComma(value string) string {
	return strings.Replace(value, ".", ",", 1)
}
