package pipeline

import (
	"regexp"
	"strings"

	"vidsub/internal/timecode"
)

var probeDurationPattern = regexp.MustCompile(`Duration: (\d+):(\d+):(\d+\.\d+)`)

// probeScanLimit bounds the accumulated stderr while no duration has matched.
const probeScanLimit = 256 * 1024

func probeArgs(video string) []string {
	return []string{"-i", video}
}

// durationScanner accumulates probe stderr until the first duration match.
type durationScanner struct {
	buf     strings.Builder
	totalMs int64
	found   bool
}

// Feed appends a chunk and reports whether this chunk produced the match.
func (s *durationScanner) Feed(chunk []byte) bool {
	if s.found {
		return false
	}
	s.buf.Write(chunk)
	m := probeDurationPattern.FindStringSubmatch(s.buf.String())
	if m == nil {
		if s.buf.Len() > probeScanLimit {
			// Keep a short tail so a token split across the boundary still matches.
			tail := s.buf.String()[s.buf.Len()-64:]
			s.buf.Reset()
			s.buf.WriteString(tail)
		}
		return false
	}
	ms, err := timecode.ToMillis(m[1], m[2], m[3])
	if err != nil {
		return false
	}
	s.totalMs = ms
	s.found = true
	s.buf.Reset()
	return true
}

// ParseDuration extracts the first "Duration: H:MM:SS.ss" from text.
func ParseDuration(text string) (int64, bool) {
	var s durationScanner
	if !s.Feed([]byte(text)) {
		return 0, false
	}
	return s.totalMs, true
}
