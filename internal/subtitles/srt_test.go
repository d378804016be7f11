package subtitles

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSRT(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.srt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestValidateSRTContent(t *testing.T) {
	valid := "1\n00:00:01,000 --> 00:00:02,000\nHello\n\n2\n00:00:02,000 --> 00:00:03,000\nWorld\n\n"
	tests := []struct {
		name       string
		content    string
		durationMs int64
		wantPrefix string
	}{
		{name: "valid", content: valid, durationMs: 3_000},
		{name: "unknown duration", content: valid},
		{name: "empty", content: "\n\n", wantPrefix: "empty_subtitle_file"},
		{name: "no timestamps", content: "1\nHello\n", wantPrefix: "no_valid_timestamps"},
		{name: "overrun", content: "1\n00:00:01,000 --> 00:00:20,000\nlate\n", durationMs: 10_000, wantPrefix: "cue_beyond_duration"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			issues := ValidateSRTContent(writeSRT(t, tc.content), tc.durationMs)
			if tc.wantPrefix == "" {
				if len(issues) != 0 {
					t.Fatalf("expected no issues, got %v", issues)
				}
				return
			}
			if len(issues) != 1 || !strings.HasPrefix(issues[0], tc.wantPrefix) {
				t.Fatalf("expected %s, got %v", tc.wantPrefix, issues)
			}
		})
	}
}

func TestValidateSRTContentMissingFile(t *testing.T) {
	issues := ValidateSRTContent(filepath.Join(t.TempDir(), "nope.srt"), 0)
	if len(issues) != 1 || !strings.HasPrefix(issues[0], "read_error") {
		t.Fatalf("unexpected issues %v", issues)
	}
}

func TestBounds(t *testing.T) {
	path := writeSRT(t, "1\n00:00:05,000 --> 00:00:06,000\na\n\n2\n00:00:01,500 --> 00:00:09,250\nb\n")
	first, last, found, err := Bounds(path)
	if err != nil || !found {
		t.Fatalf("Bounds: found=%v err=%v", found, err)
	}
	if first != 1_500 || last != 9_250 {
		t.Fatalf("unexpected bounds %d..%d", first, last)
	}
}
