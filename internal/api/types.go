package api

import (
	"time"

	"vidsub/internal/deps"
	"vidsub/internal/history"
	"vidsub/internal/pipeline"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// StartRunRequest starts a run. Omitted sink flags fall back to the saved
// settings.
type StartRunRequest struct {
	Input     string `json:"input"`
	SRT       *bool  `json:"srt,omitempty"`
	TXT       *bool  `json:"txt,omitempty"`
	OutputDir string `json:"outputDir,omitempty"`
}

// StartRunResponse returns the id of the run that was started.
type StartRunResponse struct {
	RunID string `json:"runId"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Progress mirrors pipeline.Progress.
type Progress struct {
	TotalMs   int64 `json:"totalMs"`
	CurrentMs int64 `json:"currentMs"`
	Percent   int   `json:"percent"`
}

// OutputFile describes one produced (or expected) output.
type OutputFile struct {
	Kind   string   `json:"kind"`
	Path   string   `json:"path"`
	Exists bool     `json:"exists"`
	Size   int64    `json:"size"`
	Cues   int      `json:"cues,omitempty"`
	Issues []string `json:"issues,omitempty"`
}

// RunResult captures a finished run.
type RunResult struct {
	RunID     string       `json:"runId"`
	Input     string       `json:"input"`
	Status    string       `json:"status"`
	Outputs   []OutputFile `json:"outputs,omitempty"`
	Warnings  []string     `json:"warnings,omitempty"`
	Error     string       `json:"error,omitempty"`
	Summary   string       `json:"summary"`
	StartedAt string       `json:"startedAt,omitempty"`
	EndedAt   string       `json:"endedAt,omitempty"`
}

// StatusResponse is the controller snapshot.
type StatusResponse struct {
	Status       string     `json:"status"`
	Label        string     `json:"label"`
	Active       bool       `json:"active"`
	RunID        string     `json:"runId,omitempty"`
	Input        string     `json:"input,omitempty"`
	Message      string     `json:"message,omitempty"`
	Progress     Progress   `json:"progress"`
	SubtitlePath string     `json:"subtitlePath,omitempty"`
	TextPath     string     `json:"textPath,omitempty"`
	Last         *RunResult `json:"last,omitempty"`
}

// HistoryRun is one persisted run.
type HistoryRun struct {
	RunID      string   `json:"runId"`
	Input      string   `json:"input"`
	Status     string   `json:"status"`
	SRTPath    string   `json:"srtPath,omitempty"`
	TXTPath    string   `json:"txtPath,omitempty"`
	SRTExists  bool     `json:"srtExists"`
	TXTExists  bool     `json:"txtExists"`
	CueCount   int      `json:"cueCount"`
	DurationMs int64    `json:"durationMs"`
	Error      string   `json:"error,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	StartedAt  string   `json:"startedAt"`
	FinishedAt string   `json:"finishedAt"`
}

// HistoryResponse lists runs newest first.
type HistoryResponse struct {
	Runs []HistoryRun `json:"runs"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// HealthResponse reports whether every required tool is available.
type HealthResponse struct {
	Ready        bool               `json:"ready"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// Event is one websocket message.
type Event struct {
	Type  string `json:"type"`
	RunID string `json:"runId"`
	Time  string `json:"time"`
	// Exactly one of the payload fields is set, matching Type.
	Status   *StatusEventPayload `json:"status,omitempty"`
	Progress *Progress           `json:"progress,omitempty"`
	Output   *OutputPayload      `json:"output,omitempty"`
	Result   *RunResult          `json:"result,omitempty"`
}

// Event types.
const (
	EventStatus   = "status"
	EventProgress = "progress"
	EventOutput   = "output"
	EventFinished = "finished"
)

// StatusEventPayload carries a state transition.
type StatusEventPayload struct {
	Status  string `json:"status"`
	Label   string `json:"label"`
	Message string `json:"message,omitempty"`
}

// OutputPayload carries a chunk of tool output.
type OutputPayload struct {
	Stage  string `json:"stage"`
	Stream string `json:"stream"`
	Text   string `json:"text"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromProgress converts pipeline progress.
func FromProgress(p pipeline.Progress) Progress {
	return Progress{TotalMs: p.TotalMs, CurrentMs: p.CurrentMs, Percent: p.Percent}
}

// FromResult converts a finished pipeline result.
func FromResult(res pipeline.Result) RunResult {
	out := RunResult{
		RunID:     res.RunID,
		Input:     res.Request.Input,
		Status:    string(res.Status),
		Warnings:  res.Warnings,
		Error:     res.ErrorMessage(),
		Summary:   res.Summary(),
		StartedAt: formatTime(res.Started),
		EndedAt:   formatTime(res.Finished),
	}
	for _, file := range res.Outputs {
		out.Outputs = append(out.Outputs, OutputFile{
			Kind:   file.Kind,
			Path:   file.Path,
			Exists: file.Exists,
			Size:   file.Size,
			Cues:   file.Cues,
			Issues: file.Issues,
		})
	}
	return out
}

// FromSnapshot converts a controller snapshot.
func FromSnapshot(snap pipeline.Snapshot) StatusResponse {
	resp := StatusResponse{
		Status:       string(snap.Status),
		Label:        snap.Status.Label(),
		Active:       snap.Status.Active(),
		RunID:        snap.RunID,
		Input:        snap.Input,
		Message:      snap.Message,
		Progress:     FromProgress(snap.Progress),
		SubtitlePath: snap.Paths.Subtitle,
		TextPath:     snap.Paths.Text,
	}
	if snap.Last != nil {
		last := FromResult(*snap.Last)
		resp.Last = &last
	}
	return resp
}

// FromHistory converts a history entry.
func FromHistory(e history.Entry) HistoryRun {
	return HistoryRun{
		RunID:      e.RunID,
		Input:      e.Input,
		Status:     string(e.Status),
		SRTPath:    e.SRTPath,
		TXTPath:    e.TXTPath,
		SRTExists:  e.SRTExists,
		TXTExists:  e.TXTExists,
		CueCount:   e.CueCount,
		DurationMs: e.DurationMs,
		Error:      e.Error,
		Warnings:   e.Warnings,
		StartedAt:  formatTime(e.StartedAt),
		FinishedAt: formatTime(e.FinishedAt),
	}
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}
