package pipeline

import (
	"regexp"
	"strings"

	"vidsub/internal/procrun"
	"vidsub/internal/timecode"
)

var extractTimePattern = regexp.MustCompile(`time=(\d+):(\d+):(\d+\.\d+)`)

func extractArgs(video, wave string) []string {
	return []string{"-i", video, "-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le", wave}
}

// clockScanner tracks the extractor's time= clock. Only complete lines are
// inspected so a token split across chunks is not misread.
type clockScanner struct {
	lines procrun.LineBuffer
}

// Feed returns the last time= value among the lines completed by chunk.
func (s *clockScanner) Feed(chunk []byte) (int64, bool) {
	lines := s.lines.Feed(chunk)
	if len(lines) == 0 {
		return 0, false
	}
	return lastClock(strings.Join(lines, "\n"))
}

func lastClock(text string) (int64, bool) {
	matches := extractTimePattern.FindAllStringSubmatch(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		if ms, err := timecode.ToMillis(m[1], m[2], m[3]); err == nil {
			return ms, true
		}
	}
	return 0, false
}
