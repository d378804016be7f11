package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidsub/internal/logging"
	"vidsub/internal/procrun"
	"vidsub/internal/services"
	"vidsub/internal/subtitles"
	"vidsub/internal/timecode"
)

const (
	defaultKillTimeout = time.Second
	stderrTailBytes    = 4096
)

// Tools are the resolved executables for each stage.
type Tools struct {
	Probe       string
	Extractor   string
	Transcriber string
}

// Options configures a Controller.
type Options struct {
	Tools    Tools
	Model    string
	Language string
	Prompt   string
	TempDir  string
	// KillTimeout bounds the wait after killing a stage process.
	KillTimeout time.Duration

	Runner   procrun.Runner
	Logger   *slog.Logger
	Observer Observer

	// Now and NewID are replaced in tests.
	Now   func() time.Time
	NewID func() string
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	Status   Status   `json:"status"`
	RunID    string   `json:"run_id,omitempty"`
	Input    string   `json:"input,omitempty"`
	Message  string   `json:"message,omitempty"`
	Progress Progress `json:"progress"`
	Paths    Paths    `json:"paths"`
	Last     *Result  `json:"last,omitempty"`
}

// Controller sequences probe, extraction and transcription for one video at
// a time.
type Controller struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	status   Status
	message  string
	progress Progress
	current  *run
	last     *Result
}

type run struct {
	id      string
	req     Request
	paths   Paths
	ctx     context.Context
	logger  *slog.Logger
	sampler *logging.ProgressSampler
	started time.Time

	cancel    chan struct{}
	cancelled bool
	active    procrun.Handle
	done      chan struct{}

	warnings []string
	result   Result
}

// New builds a controller. Missing runner, logger and observer get defaults.
func New(opts Options) *Controller {
	if opts.Runner == nil {
		opts.Runner = procrun.ExecRunner{}
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = defaultKillTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	if strings.TrimSpace(opts.TempDir) == "" {
		opts.TempDir = os.TempDir()
	}
	if strings.TrimSpace(opts.Tools.Probe) == "" {
		opts.Tools.Probe = opts.Tools.Extractor
	}
	return &Controller{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "pipeline"),
		status: StatusIdle,
	}
}

// Start validates req, removes stale outputs for the enabled sinks and
// launches the run in the background. The run is not bound to ctx's
// cancellation; use Stop to cancel it.
func (c *Controller) Start(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return "", services.Wrap(services.ErrBusy, "", "start", "a run is already in progress", nil)
	}

	now := c.opts.Now()
	paths, err := derivePaths(req, c.opts.TempDir, now)
	if err != nil {
		c.mu.Unlock()
		return "", services.Wrap(services.ErrConfiguration, "", "start", "derive output paths", err)
	}
	if req.OutputDir != "" {
		if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
			c.mu.Unlock()
			return "", services.Wrap(services.ErrConfiguration, "", "start", "create output directory", err)
		}
	}

	id := c.opts.NewID()
	runCtx := services.WithRunID(context.WithoutCancel(ctx), id)
	r := &run{
		id:      id,
		req:     req,
		paths:   paths,
		ctx:     runCtx,
		logger:  logging.WithContext(runCtx, c.logger),
		sampler: logging.NewProgressSampler(5),
		started: now,
		cancel:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.current = r
	c.last = nil
	c.status = StatusProbingDuration
	c.message = "probing duration"
	c.progress = Progress{}
	c.mu.Unlock()

	for _, stale := range r.outputTargets() {
		if err := subtitles.RemoveStale(stale); err != nil {
			r.warn("stale output not removed", "stale_output", err, "previous output may be mixed with new output")
		}
	}

	r.logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("input", req.Input),
		logging.Bool("srt", req.SRT),
		logging.Bool("txt", req.TXT),
		logging.String("subtitle_path", paths.Subtitle),
		logging.String("text_path", paths.Text),
		logging.String("wave_path", paths.Wave),
	)

	go c.execute(r)
	return id, nil
}

// Run starts a run and waits for it to finish.
func (c *Controller) Run(ctx context.Context, req Request) (Result, error) {
	if _, err := c.Start(ctx, req); err != nil {
		return Result{}, err
	}
	return c.Wait(ctx)
}

// Wait blocks until the current run ends or ctx is done. Without a current
// run it returns the last result, or ErrNotRunning.
func (c *Controller) Wait(ctx context.Context) (Result, error) {
	c.mu.Lock()
	r, last := c.current, c.last
	c.mu.Unlock()
	if r == nil {
		if last != nil {
			return *last, last.Err
		}
		return Result{}, services.Wrap(services.ErrNotRunning, "", "wait", "", nil)
	}
	select {
	case <-r.done:
		return r.result, r.result.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Stop cancels the active run: the running tool is killed (bounded wait),
// the temp waveform is removed and the controller returns to Idle. Failures
// caused by the kill are not reported.
func (c *Controller) Stop() error {
	c.mu.Lock()
	r := c.current
	if r == nil {
		c.mu.Unlock()
		return services.Wrap(services.ErrNotRunning, "", "stop", "nothing to stop", nil)
	}
	var handle procrun.Handle
	if !r.cancelled {
		r.cancelled = true
		close(r.cancel)
		handle = r.active
	}
	c.mu.Unlock()

	r.logger.Info("stop requested", logging.String(logging.FieldEventType, "run_stop"))
	if handle != nil {
		handle.Kill(c.opts.KillTimeout)
	}
	<-r.done
	return nil
}

// Close stops any active run. Safe to call more than once.
func (c *Controller) Close() error {
	if err := c.Stop(); err != nil && !errors.Is(err, services.ErrNotRunning) {
		return err
	}
	return nil
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		Status:   c.status,
		Message:  c.message,
		Progress: c.progress,
	}
	if r := c.current; r != nil {
		snap.RunID = r.id
		snap.Input = r.req.Input
		snap.Paths = r.paths
	}
	if c.last != nil {
		last := *c.last
		snap.Last = &last
		if snap.RunID == "" && c.status.Terminal() {
			snap.RunID = last.RunID
			snap.Input = last.Request.Input
		}
	}
	return snap
}

func (c *Controller) execute(r *run) {
	defer close(r.done)
	status, err := c.pipeline(r)
	c.finish(r, status, err)
}

// pipeline runs the stages in sequence and returns the terminal status.
func (c *Controller) pipeline(r *run) (Status, error) {
	c.transition(r, StatusProbingDuration, "probing duration")
	if c.probe(r) {
		return StatusCancelled, nil
	}

	c.transition(r, StatusExtractingAudio, "extracting audio")
	if cancelled, err := c.extract(r); cancelled {
		return StatusCancelled, nil
	} else if err != nil {
		return StatusFailed, err
	}

	c.transition(r, StatusTranscribing, "transcribing")
	c.mu.Lock()
	c.progress.CurrentMs = 0
	c.progress.Percent = 50
	progress := c.progress
	c.mu.Unlock()
	c.publishProgress(r, StatusTranscribing, progress)

	if cancelled, err := c.transcribe(r); cancelled {
		return StatusCancelled, nil
	} else if err != nil {
		return StatusFailed, err
	}

	c.mu.Lock()
	c.progress.Percent = 100
	progress = c.progress
	c.mu.Unlock()
	c.publishProgress(r, StatusTranscribing, progress)
	return StatusCompleted, nil
}

// probe never fails the run; it reports only whether the run was cancelled.
func (c *Controller) probe(r *run) bool {
	var scanner durationScanner
	terminal, cancelled := c.runStage(r, StatusProbingDuration, c.opts.Tools.Probe, probeArgs(r.req.Input), func(ev procrun.Event) {
		if ev.Kind != procrun.Stderr {
			return
		}
		if scanner.Feed(ev.Data) {
			c.mu.Lock()
			c.progress.TotalMs = scanner.totalMs
			c.mu.Unlock()
		}
	})
	if cancelled {
		return true
	}

	if !terminal.Success() {
		r.logger.Debug("probe exited without success",
			logging.String("terminal", terminal.Kind.String()),
			logging.Int("exit_code", terminal.Code),
			logging.Error(terminal.Err),
		)
	}
	if scanner.found {
		r.logger.Info("duration probed",
			logging.String(logging.FieldEventType, "duration_probed"),
			logging.Int64("total_ms", scanner.totalMs),
			logging.String("duration", timecode.FormatDuration(scanner.totalMs)),
		)
		c.setMessage(r, "duration "+timecode.FormatDuration(scanner.totalMs))
		return false
	}
	r.warn("duration unknown", "duration_unknown", terminal.Err, "progress may be inaccurate")
	c.setMessage(r, "duration unknown, progress may be inaccurate")
	return false
}

func (c *Controller) extract(r *run) (bool, error) {
	var clock clockScanner
	stderr := &tailBuffer{limit: stderrTailBytes}
	terminal, cancelled := c.runStage(r, StatusExtractingAudio, c.opts.Tools.Extractor, extractArgs(r.req.Input, r.paths.Wave), func(ev procrun.Event) {
		if ev.Kind != procrun.Stderr {
			return
		}
		stderr.Write(ev.Data)
		ms, ok := clock.Feed(ev.Data)
		if !ok {
			return
		}
		c.mu.Lock()
		c.progress.CurrentMs = ms
		c.progress.Percent = extractionPercent(c.progress)
		progress := c.progress
		c.mu.Unlock()
		c.setMessage(r, fmt.Sprintf("extracting audio: %s/%s", timecode.FormatDuration(ms), totalLabel(progress)))
		c.publishProgress(r, StatusExtractingAudio, progress)
	})
	if cancelled {
		return true, nil
	}
	if !terminal.Success() {
		return false, stageFailure(StatusExtractingAudio, terminal, stderr.String())
	}
	return false, nil
}

func (c *Controller) transcribe(r *run) (bool, error) {
	parser := subtitles.NewTranscriptParser()
	sinks := r.sinks()
	stderr := &tailBuffer{limit: stderrTailBytes}
	failed := map[string]bool{}

	deliver := func(batch subtitles.Batch) {
		for _, sink := range sinks {
			if err := sink.Write(batch.Cues); err != nil && !failed[sink.Kind()] {
				failed[sink.Kind()] = true
				r.warn("subtitle write failed", "sink_write_failed", err, sink.Kind()+" output may be incomplete")
			}
		}
	}

	terminal, cancelled := c.runStage(r, StatusTranscribing, c.opts.Tools.Transcriber,
		transcribeArgs(r.paths.Wave, c.opts.Model, c.opts.Language, c.opts.Prompt),
		func(ev procrun.Event) {
			if ev.Kind == procrun.Stderr {
				stderr.Write(ev.Data)
				return
			}
			batch := parser.Feed(ev.Data)
			deliver(batch)
			if !batch.HasProgress {
				return
			}
			c.mu.Lock()
			c.progress.CurrentMs = batch.ProgressMs
			c.progress.Percent = transcriptionPercent(c.progress)
			progress := c.progress
			c.mu.Unlock()
			c.setMessage(r, fmt.Sprintf("transcribing: %s/%s", timecode.FormatDuration(batch.ProgressMs), totalLabel(progress)))
			c.publishProgress(r, StatusTranscribing, progress)
		})

	if cancelled {
		return true, nil
	}
	// The stdout stream has ended; the last open cue is complete.
	deliver(parser.Flush())
	r.logger.Debug("transcript parsed", logging.Int("cues", parser.Emitted()))

	if !terminal.Success() {
		return false, stageFailure(StatusTranscribing, terminal, stderr.String())
	}
	return false, nil
}

// runStage launches one tool and dispatches its events until the terminal
// event or cancellation. handle is called for every output chunk.
func (c *Controller) runStage(r *run, stage Status, binary string, args []string, handle func(procrun.Event)) (procrun.Event, bool) {
	ctx := logging.WithStage(r.ctx, string(stage))
	logger := logging.WithContext(ctx, c.logger)

	c.mu.Lock()
	if r.cancelled {
		c.mu.Unlock()
		return procrun.Event{}, true
	}
	h := c.opts.Runner.Start(ctx, binary, args)
	r.active = h
	c.mu.Unlock()

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("binary", binary),
		logging.Any("args", args),
	)
	started := time.Now()

	defer func() {
		c.mu.Lock()
		r.active = nil
		c.mu.Unlock()
	}()

	var terminal procrun.Event
	events := h.Events()
	for {
		select {
		case <-r.cancel:
			logger.Info("stage cancelled", logging.String(logging.FieldEventType, "stage_cancelled"))
			return terminal, true
		case ev, ok := <-events:
			if !ok {
				if c.isCancelled(r) {
					return terminal, true
				}
				logger.Info("stage finished",
					logging.String(logging.FieldEventType, "stage_complete"),
					logging.String("terminal", terminal.Kind.String()),
					logging.Int("exit_code", terminal.Code),
					logging.Duration("elapsed", time.Since(started)),
				)
				return terminal, false
			}
			if ev.Terminal() {
				terminal = ev
				continue
			}
			logger.Debug("tool output", logging.String("stream", ev.Kind.String()), logging.String("text", string(ev.Data)))
			c.opts.Observer.Output(OutputEvent{RunID: r.id, Stage: stage, Stream: ev.Kind.String(), Text: string(ev.Data)})
			handle(ev)
		}
	}
}

func (c *Controller) finish(r *run, status Status, err error) {
	if removeErr := os.Remove(r.paths.Wave); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
		r.warn("temp waveform not removed", "temp_cleanup_failed", removeErr, "temporary file left on disk")
	}

	result := Result{
		RunID:    r.id,
		Request:  r.req,
		Status:   status,
		Started:  r.started,
		Finished: c.opts.Now(),
	}
	var message string
	switch status {
	case StatusCompleted:
		result.Outputs = c.inspectOutputs(r)
		message = "completed"
	case StatusFailed:
		result.Err = err
		message = "failed"
	case StatusCancelled:
		result.Err = services.Wrap(services.ErrCancelled, "", "run", "stopped by user", nil)
		message = "stopped"
	}

	c.mu.Lock()
	result.Progress = c.progress
	result.Warnings = append([]string(nil), r.warnings...)
	r.result = result
	stored := result
	c.last = &stored
	c.current = nil
	if status == StatusCancelled {
		c.status = StatusIdle
	} else {
		c.status = status
	}
	c.message = message
	c.mu.Unlock()

	switch status {
	case StatusFailed:
		logging.ErrorWithContext(r.logger, "run failed", "run_failure",
			logging.String(logging.FieldErrorHint, "check the tool output above and the configured tool paths"),
			logging.Error(err),
		)
	default:
		r.logger.Info("run finished",
			logging.String(logging.FieldEventType, "run_complete"),
			logging.String("status", string(status)),
			logging.Duration("elapsed", result.Elapsed()),
			logging.Any("produced", result.Produced()),
		)
	}

	c.opts.Observer.StatusChanged(StatusEvent{RunID: r.id, Status: status, Message: message, Time: result.Finished})
	if status == StatusCancelled {
		c.opts.Observer.StatusChanged(StatusEvent{RunID: r.id, Status: StatusIdle, Message: message, Time: result.Finished})
	}
	c.opts.Observer.Finished(result)
}

func (c *Controller) inspectOutputs(r *run) []OutputFile {
	var outputs []OutputFile
	add := func(kind, path string) {
		out := OutputFile{Kind: kind, Path: path}
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			out.Exists = true
			out.Size = info.Size()
		}
		if out.Exists && kind == "srt" {
			if n, err := subtitles.CountCues(path); err == nil {
				out.Cues = n
			}
			c.mu.Lock()
			total := c.progress.TotalMs
			c.mu.Unlock()
			out.Issues = subtitles.ValidateSRTContent(path, total)
		}
		if !out.Exists {
			r.warnings = append(r.warnings, fmt.Sprintf("%s file not generated", strings.ToUpper(kind)))
		}
		outputs = append(outputs, out)
	}
	if r.req.SRT {
		add("srt", r.paths.Subtitle)
	}
	if r.req.TXT {
		add("txt", r.paths.Text)
	}
	return outputs
}

func (c *Controller) transition(r *run, status Status, message string) {
	c.mu.Lock()
	c.status = status
	c.message = message
	c.mu.Unlock()
	r.sampler.Reset()
	c.opts.Observer.StatusChanged(StatusEvent{RunID: r.id, Status: status, Message: message, Time: c.opts.Now()})
}

func (c *Controller) setMessage(r *run, message string) {
	c.mu.Lock()
	c.message = message
	status := c.status
	c.mu.Unlock()
	c.opts.Observer.StatusChanged(StatusEvent{RunID: r.id, Status: status, Message: message, Time: c.opts.Now()})
}

func (c *Controller) publishProgress(r *run, stage Status, progress Progress) {
	if r.sampler.ShouldLog(float64(progress.Percent), string(stage)) {
		r.logger.Info("progress",
			logging.String(logging.FieldEventType, "progress"),
			logging.String(logging.FieldStage, string(stage)),
			logging.Int("percent", progress.Percent),
			logging.Int64("current_ms", progress.CurrentMs),
			logging.Int64("total_ms", progress.TotalMs),
		)
	}
	c.opts.Observer.ProgressChanged(ProgressEvent{RunID: r.id, Stage: stage, Progress: progress})
}

func (c *Controller) isCancelled(r *run) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return r.cancelled
}

func (r *run) outputTargets() []string {
	var paths []string
	if r.req.SRT {
		paths = append(paths, r.paths.Subtitle)
	}
	if r.req.TXT {
		paths = append(paths, r.paths.Text)
	}
	return paths
}

func (r *run) sinks() []subtitles.Sink {
	var sinks []subtitles.Sink
	if r.req.SRT {
		sinks = append(sinks, subtitles.NewSRTSink(r.paths.Subtitle))
	}
	if r.req.TXT {
		sinks = append(sinks, subtitles.NewTextSink(r.paths.Text))
	}
	return sinks
}

// warn records a non-fatal problem for the result and logs it.
func (r *run) warn(msg, eventType string, err error, impact string) {
	r.warnings = append(r.warnings, msg)
	attrs := []logging.Attr{logging.String(logging.FieldImpact, impact)}
	if err != nil {
		attrs = append(attrs, logging.Error(err))
	}
	logging.WarnWithContext(r.logger, msg, eventType, attrs...)
}

func stageFailure(stage Status, terminal procrun.Event, stderr string) error {
	return &StageError{
		Stage:    stage,
		ExitCode: terminal.Code,
		Abnormal: terminal.Kind != procrun.Exited,
		Detail:   stderr,
		Err:      terminal.Err,
	}
}

func totalLabel(p Progress) string {
	if !p.Known() {
		return "unknown"
	}
	return timecode.FormatDuration(p.TotalMs)
}
