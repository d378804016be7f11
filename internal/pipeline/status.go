package pipeline

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is the run state.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusProbingDuration Status = "probing_duration"
	StatusExtractingAudio Status = "extracting_audio"
	StatusTranscribing    Status = "transcribing"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
)

// Active reports whether a stage process may be running in this state.
func (s Status) Active() bool {
	switch s {
	case StatusProbingDuration, StatusExtractingAudio, StatusTranscribing:
		return true
	default:
		return false
	}
}

// Terminal reports whether the run has ended.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Label renders the status for humans, e.g. "Extracting Audio".
func (s Status) Label() string {
	if s == "" {
		return ""
	}
	// Casers carry state and are not shared across goroutines.
	return cases.Title(language.English).String(strings.ReplaceAll(string(s), "_", " "))
}

func (s Status) String() string { return string(s) }
