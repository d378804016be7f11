package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"vidsub/internal/pipeline"
	"vidsub/internal/procrun"
	"vidsub/internal/services"
	"vidsub/internal/testsupport"
)

const (
	probeBin      = "probe"
	extractBin    = "extract"
	transcribeBin = "transcribe"
)

func evs(events ...procrun.Event) []procrun.Event { return events }

type recorder struct {
	mu       sync.Mutex
	statuses []pipeline.StatusEvent
	progress []int
	outputs  []pipeline.OutputEvent
	finished []pipeline.Result
}

func (r *recorder) StatusChanged(ev pipeline.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, ev)
}

func (r *recorder) ProgressChanged(ev pipeline.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, ev.Progress.Percent)
}

func (r *recorder) Output(ev pipeline.OutputEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, ev)
}

func (r *recorder) Finished(res pipeline.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, res)
}

func (r *recorder) percents() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.progress...)
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.statuses {
		out = append(out, ev.Message)
	}
	return out
}

type fixture struct {
	runner   *testsupport.FakeRunner
	obs      *recorder
	ctrl     *pipeline.Controller
	tempDir  string
	videoDir string
	input    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		runner:   testsupport.NewFakeRunner(),
		obs:      &recorder{},
		tempDir:  t.TempDir(),
		videoDir: t.TempDir(),
	}
	f.input = filepath.Join(f.videoDir, "talk.mp4")
	f.ctrl = pipeline.New(pipeline.Options{
		Tools:       pipeline.Tools{Probe: probeBin, Extractor: extractBin, Transcriber: transcribeBin},
		Model:       "ggml-base.bin",
		Language:    "zh",
		Prompt:      "prompt",
		TempDir:     f.tempDir,
		KillTimeout: 200 * time.Millisecond,
		Runner:      f.runner,
		Observer:    f.obs,
		Now: func() time.Time {
			return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		},
	})
	t.Cleanup(func() { _ = f.ctrl.Close() })
	return f
}

// createWave makes the extractor script produce its output file.
func createWave(t *testing.T) func(args []string) {
	return func(args []string) {
		wave := args[len(args)-1]
		if err := os.WriteFile(wave, []byte("RIFF"), 0o644); err != nil {
			t.Errorf("create wave: %v", err)
		}
	}
}

func (f *fixture) scriptHappyPath(t *testing.T, transcript ...string) {
	f.runner.Script(probeBin, testsupport.Script{Events: evs(
		testsupport.Stderr("Input #0, mov,mp4\n  Duration: 00:01"),
		testsupport.Stderr(":40.00, start: 0.000000\n"),
		testsupport.Stderr("At least one output file must be specified\n"),
		testsupport.Exit(1),
	)})
	f.runner.Script(extractBin, testsupport.Script{
		OnStart: createWave(t),
		Events: evs(
			testsupport.Stderr("size=    1kB time=00:00:50.00 bitrate=1kbits/s\r"),
			testsupport.Stderr("size=    2kB time=00:01:40.00 bitrate=1kbits/s\n"),
			testsupport.Exit(0),
		),
	})
	events := evs()
	for _, chunk := range transcript {
		events = append(events, testsupport.Stdout(chunk))
	}
	events = append(events, testsupport.Exit(0))
	f.runner.Script(transcribeBin, testsupport.Script{Events: events})
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestRunCompletesAndWritesOutputs(t *testing.T) {
	f := newFixture(t)
	f.scriptHappyPath(t,
		"[00:00:01.000 --> 00:00:02.000] Hello\n[00:00:02.000 --> 00:00:03.000] World\n",
	)

	res, err := f.ctrl.Run(context.Background(), pipeline.Request{Input: f.input, SRT: true, TXT: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != pipeline.StatusCompleted {
		t.Fatalf("unexpected status %s", res.Status)
	}

	srtPath := filepath.Join(f.videoDir, "talk.srt")
	txtPath := filepath.Join(f.videoDir, "talk.txt")
	wantSRT := "1\n00:00:01,000 --> 00:00:02,000\nHello\n\n2\n00:00:02,000 --> 00:00:03,000\nWorld\n\n"
	if got := readFile(t, srtPath); got != wantSRT {
		t.Fatalf("srt mismatch:\n%q\nwant\n%q", got, wantSRT)
	}
	if got := readFile(t, txtPath); got != "Hello\n\nWorld\n" {
		t.Fatalf("txt mismatch: %q", got)
	}

	if len(res.Outputs) != 2 || !res.Outputs[0].Exists || !res.Outputs[1].Exists {
		t.Fatalf("unexpected outputs %+v", res.Outputs)
	}
	if res.Outputs[0].Cues != 2 {
		t.Fatalf("expected 2 cues, got %d", res.Outputs[0].Cues)
	}
	if got := res.Produced(); len(got) != 2 || got[0] != srtPath || got[1] != txtPath {
		t.Fatalf("unexpected produced %v", got)
	}
	if res.Progress.TotalMs != 100_000 || res.Progress.Percent != 100 {
		t.Fatalf("unexpected final progress %+v", res.Progress)
	}

	percents := f.obs.percents()
	for _, want := range []int{25, 50, 100} {
		found := false
		for _, p := range percents {
			if p == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected progress %d in %v", want, percents)
		}
	}

	wave := filepath.Join(f.tempDir, "temp_audio_20260102_030405.wav")
	calls := f.runner.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 launches, got %d", len(calls))
	}
	if calls[0].Binary != probeBin || strings.Join(calls[0].Args, " ") != "-i "+f.input {
		t.Fatalf("unexpected probe call %+v", calls[0])
	}
	if got := strings.Join(calls[1].Args, " "); got != "-i "+f.input+" -ar 16000 -ac 1 -c:a pcm_s16le "+wave {
		t.Fatalf("unexpected extract args %q", got)
	}
	if got := strings.Join(calls[2].Args, " "); got != "-f "+wave+" -m ggml-base.bin -l zh --prompt prompt -osrt" {
		t.Fatalf("unexpected transcribe args %q", got)
	}
	if _, err := os.Stat(wave); !os.IsNotExist(err) {
		t.Fatalf("temp wave should be removed, stat err=%v", err)
	}

	snap := f.ctrl.Status()
	if snap.Status != pipeline.StatusCompleted || snap.Last == nil || snap.RunID != res.RunID {
		t.Fatalf("completed state should stay visible, got %+v", snap)
	}
	if !strings.Contains(res.Summary(), "SRT file: "+srtPath) {
		t.Fatalf("unexpected summary %q", res.Summary())
	}

	msgs := strings.Join(f.obs.messages(), "|")
	if !strings.Contains(msgs, "duration 00:01:40") {
		t.Fatalf("expected duration message, got %q", msgs)
	}
	f.obs.mu.Lock()
	outputs := len(f.obs.outputs)
	f.obs.mu.Unlock()
	if outputs == 0 {
		t.Fatal("expected tool output to reach the observer")
	}
}

func TestCueSplitAcrossChunksAndCounterResetBetweenRuns(t *testing.T) {
	f := newFixture(t)
	f.scriptHappyPath(t,
		"[00:00:01.000 --> 00:00:0",
		"2.000] Hello\n[00:00:02.000 --> 00:00:03.000] Wor",
		"ld\n",
	)
	req := pipeline.Request{Input: f.input, SRT: true}
	if _, err := f.ctrl.Run(context.Background(), req); err != nil {
		t.Fatalf("first run: %v", err)
	}
	srtPath := filepath.Join(f.videoDir, "talk.srt")
	first := readFile(t, srtPath)
	if !strings.HasPrefix(first, "1\n00:00:01,000 --> 00:00:02,000\nHello\n\n2\n") || !strings.HasSuffix(first, "World\n\n") {
		t.Fatalf("unexpected first run srt %q", first)
	}

	if _, err := f.ctrl.Run(context.Background(), req); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second := readFile(t, srtPath); second != first {
		t.Fatalf("second run should renumber from 1 and replace the file:\n%q", second)
	}
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t)
	tests := []pipeline.Request{
		{Input: f.input},
		{Input: "", SRT: true},
		{Input: "   ", TXT: true},
	}
	for _, req := range tests {
		if _, err := f.ctrl.Start(context.Background(), req); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("Start(%+v) expected validation error, got %v", req, err)
		}
	}
	if calls := f.runner.Calls(); len(calls) != 0 {
		t.Fatalf("no process may launch on validation failure, got %v", calls)
	}
	if snap := f.ctrl.Status(); snap.Status != pipeline.StatusIdle {
		t.Fatalf("controller should stay idle, got %s", snap.Status)
	}
}

func TestStopWhileIdle(t *testing.T) {
	f := newFixture(t)
	if err := f.ctrl.Stop(); !errors.Is(err, services.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if _, err := f.ctrl.Wait(context.Background()); !errors.Is(err, services.ErrNotRunning) {
		t.Fatalf("Wait without runs should report ErrNotRunning, got %v", err)
	}
}

func TestStopMidExtraction(t *testing.T) {
	f := newFixture(t)
	held := make(chan struct{})
	f.runner.Script(probeBin, testsupport.Script{Events: evs(
		testsupport.Stderr("Duration: 00:01:40.00\n"), testsupport.Exit(1),
	)})
	f.runner.Script(extractBin, testsupport.Script{
		OnStart: createWave(t),
		Events:  evs(testsupport.Stderr("time=00:00:10.00\r")),
		Hold:    true,
		Held:    held,
	})

	if _, err := f.ctrl.Start(context.Background(), pipeline.Request{Input: f.input, SRT: true, TXT: true}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	testsupport.WaitClosed(t, held, 5*time.Second)

	if _, err := f.ctrl.Start(context.Background(), pipeline.Request{Input: f.input, SRT: true}); !errors.Is(err, services.ErrBusy) {
		t.Fatalf("second Start should be rejected as busy, got %v", err)
	}
	if snap := f.ctrl.Status(); snap.Status != pipeline.StatusExtractingAudio {
		t.Fatalf("expected extracting, got %s", snap.Status)
	}

	if err := f.ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if snap := f.ctrl.Status(); snap.Status != pipeline.StatusIdle {
		t.Fatalf("expected idle after stop, got %s", snap.Status)
	}
	wave := filepath.Join(f.tempDir, "temp_audio_20260102_030405.wav")
	if _, err := os.Stat(wave); !os.IsNotExist(err) {
		t.Fatalf("temp wave should be removed after stop, stat err=%v", err)
	}
	if f.runner.Kills() != 1 {
		t.Fatalf("expected the extractor to be killed once, got %d", f.runner.Kills())
	}
	for _, c := range f.runner.Calls() {
		if c.Binary == transcribeBin {
			t.Fatal("transcriber must not start after stop")
		}
	}

	res, err := f.ctrl.Wait(context.Background())
	if !errors.Is(err, services.ErrCancelled) || services.IsUserFacing(err) {
		t.Fatalf("expected silent cancellation, got %v", err)
	}
	if res.Status != pipeline.StatusCancelled {
		t.Fatalf("unexpected status %s", res.Status)
	}
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		t.Fatalf("cancellation must not surface a stage failure: %v", stageErr)
	}
	if res.Summary() != "Stopped." {
		t.Fatalf("unexpected summary %q", res.Summary())
	}

	f.scriptHappyPath(t, "[00:00:01.000 --> 00:00:02.000] again\n")
	res, err = f.ctrl.Run(context.Background(), pipeline.Request{Input: f.input, SRT: true})
	if err != nil || res.Status != pipeline.StatusCompleted {
		t.Fatalf("run after stop should succeed, got %v %v", res.Status, err)
	}
}

func TestStopDuringProbe(t *testing.T) {
	f := newFixture(t)
	held := make(chan struct{})
	f.runner.Script(probeBin, testsupport.Script{
		Events: evs(testsupport.Stderr("Input #0, mov,mp4\n")),
		Hold:   true,
		Held:   held,
	})

	if _, err := f.ctrl.Start(context.Background(), pipeline.Request{Input: f.input, SRT: true}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	testsupport.WaitClosed(t, held, 5*time.Second)
	if snap := f.ctrl.Status(); snap.Status != pipeline.StatusProbingDuration {
		t.Fatalf("expected probing, got %s", snap.Status)
	}

	if err := f.ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if snap := f.ctrl.Status(); snap.Status != pipeline.StatusIdle {
		t.Fatalf("expected idle after stop, got %s", snap.Status)
	}
	if f.runner.Kills() != 1 {
		t.Fatalf("expected the probe to be killed once, got %d", f.runner.Kills())
	}
	if calls := f.runner.Calls(); len(calls) != 1 || calls[0].Binary != probeBin {
		t.Fatalf("only the probe should have launched, got %+v", calls)
	}
	res, err := f.ctrl.Wait(context.Background())
	if !errors.Is(err, services.ErrCancelled) || res.Status != pipeline.StatusCancelled {
		t.Fatalf("expected cancelled result, got %s %v", res.Status, err)
	}
}

func TestStopDuringTranscription(t *testing.T) {
	f := newFixture(t)
	f.scriptHappyPath(t)
	held := make(chan struct{})
	f.runner.Script(transcribeBin, testsupport.Script{
		Events: evs(
			testsupport.Stdout("[00:00:01.000 --> 00:00:02.000] Hello\n"),
			// The second cue is still open when the run is stopped.
			testsupport.Stdout("[00:00:02.000 --> 00:00:03.000] World\n"),
		),
		Hold: true,
		Held: held,
	})

	if _, err := f.ctrl.Start(context.Background(), pipeline.Request{Input: f.input, SRT: true}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	testsupport.WaitClosed(t, held, 5*time.Second)
	if snap := f.ctrl.Status(); snap.Status != pipeline.StatusTranscribing {
		t.Fatalf("expected transcribing, got %s", snap.Status)
	}

	if err := f.ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if snap := f.ctrl.Status(); snap.Status != pipeline.StatusIdle {
		t.Fatalf("expected idle after stop, got %s", snap.Status)
	}
	if f.runner.Kills() != 1 {
		t.Fatalf("expected the transcriber to be killed once, got %d", f.runner.Kills())
	}
	entries, err := os.ReadDir(f.tempDir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp dir should be empty after stop, found %d entries", len(entries))
	}
	srtPath := filepath.Join(f.videoDir, "talk.srt")
	if got := readFile(t, srtPath); got != "1\n00:00:01,000 --> 00:00:02,000\nHello\n\n" {
		t.Fatalf("partial srt should be kept, got %q", got)
	}
	res, err := f.ctrl.Wait(context.Background())
	if !errors.Is(err, services.ErrCancelled) || res.Status != pipeline.StatusCancelled {
		t.Fatalf("expected cancelled result, got %s %v", res.Status, err)
	}

	f.scriptHappyPath(t, "[00:00:05.000 --> 00:00:06.000] Again\n")
	if _, err := f.ctrl.Run(context.Background(), pipeline.Request{Input: f.input, SRT: true}); err != nil {
		t.Fatalf("run after stop: %v", err)
	}
	if got := readFile(t, srtPath); got != "1\n00:00:05,000 --> 00:00:06,000\nAgain\n\n" {
		t.Fatalf("next run should number from 1, got %q", got)
	}
}

func TestExtractionFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.Script(probeBin, testsupport.Script{Events: evs(testsupport.Exit(1))})
	f.runner.Script(extractBin, testsupport.Script{
		OnStart: createWave(t),
		Events: evs(
			testsupport.Stderr("talk.mp4: Invalid data found when processing input\n"),
			testsupport.Exit(1),
		),
	})

	res, err := f.ctrl.Run(context.Background(), pipeline.Request{Input: f.input, SRT: true})
	if res.Status != pipeline.StatusFailed {
		t.Fatalf("expected failure, got %s", res.Status)
	}
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got %v", err)
	}
	if stageErr.Stage != pipeline.StatusExtractingAudio || stageErr.ExitCode != 1 || stageErr.Abnormal {
		t.Fatalf("unexpected stage error %+v", stageErr)
	}
	if !errors.Is(err, services.ErrExternalTool) || !services.IsUserFacing(err) {
		t.Fatalf("stage failure should be a user-facing external tool error: %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("error should carry the stderr tail: %v", err)
	}
	for _, c := range f.runner.Calls() {
		if c.Binary == transcribeBin {
			t.Fatal("transcriber must not run after extraction failure")
		}
	}
	wave := filepath.Join(f.tempDir, "temp_audio_20260102_030405.wav")
	if _, err := os.Stat(wave); !os.IsNotExist(err) {
		t.Fatalf("temp wave should be removed after failure, stat err=%v", err)
	}
	if snap := f.ctrl.Status(); snap.Status != pipeline.StatusFailed {
		t.Fatalf("failed state should stay visible, got %s", snap.Status)
	}
}

func TestTranscriberLaunchFailure(t *testing.T) {
	f := newFixture(t)
	f.scriptHappyPath(t)
	// Replace the transcriber with an unknown binary.
	ctrl := pipeline.New(pipeline.Options{
		Tools:   pipeline.Tools{Probe: probeBin, Extractor: extractBin, Transcriber: "missing"},
		TempDir: f.tempDir,
		Runner:  f.runner,
	})
	res, err := ctrl.Run(context.Background(), pipeline.Request{Input: f.input, TXT: true})
	if res.Status != pipeline.StatusFailed {
		t.Fatalf("expected failure, got %s", res.Status)
	}
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || !stageErr.Abnormal || stageErr.Stage != pipeline.StatusTranscribing {
		t.Fatalf("expected abnormal transcription failure, got %v", err)
	}
}

func TestUnknownDurationHoldsProgress(t *testing.T) {
	f := newFixture(t)
	f.runner.Script(probeBin, testsupport.Script{Events: evs(
		testsupport.Stderr("no duration here\n"), testsupport.Exit(1),
	)})
	f.runner.Script(extractBin, testsupport.Script{Events: evs(
		testsupport.Stderr("time=00:00:30.00\r"), testsupport.Exit(0),
	)})
	f.runner.Script(transcribeBin, testsupport.Script{Events: evs(
		testsupport.Stdout("[00:00:30.000 --> 00:00:31.000] hi\n"), testsupport.Exit(0),
	)})

	res, err := f.ctrl.Run(context.Background(), pipeline.Request{Input: f.input, SRT: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, p := range f.obs.percents() {
		if p != 0 && p != 50 && p != 100 {
			t.Fatalf("unknown duration must hold progress, saw %d in %v", p, f.obs.percents())
		}
	}
	if res.Progress.TotalMs != 0 {
		t.Fatalf("expected unknown total, got %d", res.Progress.TotalMs)
	}
	msgs := strings.Join(f.obs.messages(), "|")
	if !strings.Contains(msgs, "duration unknown, progress may be inaccurate") {
		t.Fatalf("expected unknown duration message, got %q", msgs)
	}
}

func TestRerunRemovesPriorOutputsOnlyForEnabledSinks(t *testing.T) {
	f := newFixture(t)
	srtPath := filepath.Join(f.videoDir, "talk.srt")
	txtPath := filepath.Join(f.videoDir, "talk.txt")
	for _, p := range []string{srtPath, txtPath} {
		if err := os.WriteFile(p, []byte("stale\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	f.scriptHappyPath(t, "[00:00:01.000 --> 00:00:02.000] fresh\n")

	if _, err := f.ctrl.Run(context.Background(), pipeline.Request{Input: f.input, SRT: true}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := readFile(t, srtPath); strings.Contains(got, "stale") || !strings.Contains(got, "fresh") {
		t.Fatalf("srt should only contain new output, got %q", got)
	}
	if got := readFile(t, txtPath); got != "stale\n" {
		t.Fatalf("disabled sink file must be left alone, got %q", got)
	}
}

func TestCompletedWithoutCuesWarnsNotGenerated(t *testing.T) {
	f := newFixture(t)
	f.scriptHappyPath(t, "whisper_init: loading model\n")

	res, err := f.ctrl.Run(context.Background(), pipeline.Request{Input: f.input, SRT: true, TXT: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != pipeline.StatusCompleted {
		t.Fatalf("missing outputs are not fatal, got %s", res.Status)
	}
	if len(res.Produced()) != 0 {
		t.Fatalf("expected no produced files, got %v", res.Produced())
	}
	summary := res.Summary()
	if !strings.Contains(summary, "SRT file: not generated") || !strings.Contains(summary, "TXT file: not generated") {
		t.Fatalf("unexpected summary %q", summary)
	}
	if len(res.Warnings) < 2 {
		t.Fatalf("expected not-generated warnings, got %v", res.Warnings)
	}
}

func TestOutputDirOverride(t *testing.T) {
	f := newFixture(t)
	outDir := t.TempDir()
	f.scriptHappyPath(t, "[00:00:01.000 --> 00:00:02.000] elsewhere\n")
	res, err := f.ctrl.Run(context.Background(), pipeline.Request{Input: f.input, TXT: true, OutputDir: outDir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := readFile(t, filepath.Join(outDir, "talk.txt")); got != "elsewhere\n" {
		t.Fatalf("unexpected txt %q", got)
	}
	if res.Outputs[0].Path != filepath.Join(outDir, "talk.txt") {
		t.Fatalf("unexpected output path %q", res.Outputs[0].Path)
	}
}
