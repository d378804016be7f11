package subtitles

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// Sink receives closed cues in arrival order.
type Sink interface {
	Kind() string
	Path() string
	Write(cues []Cue) error
}

// SRTSink appends numbered subtitle blocks to a file.
type SRTSink struct {
	path string
}

// NewSRTSink returns a sink writing to path.
func NewSRTSink(path string) *SRTSink {
	return &SRTSink{path: path}
}

func (s *SRTSink) Kind() string { return "srt" }

func (s *SRTSink) Path() string { return s.path }

// Write appends one block per cue. The file is opened and closed per call.
func (s *SRTSink) Write(cues []Cue) error {
	if len(cues) == 0 {
		return nil
	}
	var b strings.Builder
	for _, cue := range cues {
		b.WriteString(strconv.Itoa(cue.Index))
		b.WriteByte('\n')
		b.WriteString(cue.Start)
		b.WriteString(" --> ")
		b.WriteString(cue.End)
		b.WriteByte('\n')
		for _, line := range cue.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return appendFile(s.path, b.String())
}

// TextSink appends bare cue text, blank-line separated. Cues without text
// are skipped.
type TextSink struct {
	path  string
	wrote bool
}

// NewTextSink returns a sink writing to path.
func NewTextSink(path string) *TextSink {
	return &TextSink{path: path}
}

func (s *TextSink) Kind() string { return "txt" }

func (s *TextSink) Path() string { return s.path }

// Write appends the text of each cue.
func (s *TextSink) Write(cues []Cue) error {
	var b strings.Builder
	wrote := s.wrote
	for _, cue := range cues {
		if len(cue.Lines) == 0 {
			continue
		}
		if wrote {
			b.WriteByte('\n')
		}
		b.WriteString(cue.Text())
		b.WriteByte('\n')
		wrote = true
	}
	if b.Len() == 0 {
		return nil
	}
	if err := appendFile(s.path, b.String()); err != nil {
		return err
	}
	s.wrote = wrote
	return nil
}

// RemoveStale deletes a leftover output file. A missing file is not an error.
func RemoveStale(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("append %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
