package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"vidsub/internal/logging"
	"vidsub/internal/pipeline"
	"vidsub/internal/services"
)

const (
	defaultPollInterval = time.Second
	defaultSettleDelay  = 2 * time.Second
)

// Runner executes one request to completion. *pipeline.Controller satisfies it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
	Stop() error
}

// Options configures a Watcher.
type Options struct {
	Dir       string
	SRT       bool
	TXT       bool
	OutputDir string
	// IncludeExisting queues videos already present when New is called.
	IncludeExisting bool
	// ForcePolling skips fsnotify entirely.
	ForcePolling bool
	PollInterval time.Duration
	SettleDelay  time.Duration
	Logger       *slog.Logger
	// Now is replaced in tests.
	Now func() time.Time
}

// Watcher queues new videos from a directory.
type Watcher struct {
	runner Runner
	opts   Options
	logger *slog.Logger
	// existing is the directory snapshot taken by New; those files count as
	// seen unless IncludeExisting is set.
	existing []string
}

type candidate struct {
	size        int64
	modTime     time.Time
	stableSince time.Time
}

type outcome struct {
	path   string
	result pipeline.Result
	err    error
}

// New validates opts and returns a watcher.
func New(runner Runner, opts Options) (*Watcher, error) {
	if runner == nil {
		return nil, errors.New("watch: runner is required")
	}
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrValidation, "watch", "new", "watch directory is required", nil)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve watch directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "watch", "new", "watch directory unavailable", err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "watch", "new", abs+" is not a directory", nil)
	}
	if !opts.SRT && !opts.TXT {
		return nil, services.Wrap(services.ErrValidation, "watch", "new", "at least one output (srt or txt) must be enabled", nil)
	}
	opts.Dir = abs
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	} else if opts.SettleDelay == 0 {
		opts.SettleDelay = defaultSettleDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	w := &Watcher{
		runner: runner,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "watch"),
	}
	if !opts.IncludeExisting {
		w.existing = w.listVideos()
	}
	return w, nil
}

// Dir returns the absolute watched directory.
func (w *Watcher) Dir() string { return w.opts.Dir }

// Run watches until ctx is cancelled. An in-flight run is stopped before Run
// returns.
func (w *Watcher) Run(ctx context.Context) error {
	events, errs, closeWatcher := w.subscribe()
	defer closeWatcher()
	polling := events == nil

	pending := make(map[string]*candidate)
	seen := make(map[string]struct{}, len(w.existing))
	for _, path := range w.existing {
		seen[path] = struct{}{}
	}
	// Picks up files created between New and the fsnotify subscription.
	w.scan(pending, seen)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	var (
		queue []string
		busy  bool
		done  = make(chan outcome, 1)
	)

	w.logger.Info("watching directory",
		logging.String(logging.FieldEventType, "watch_start"),
		logging.String("dir", w.opts.Dir),
		logging.Bool("polling", polling),
	)

	for {
		if !busy && len(queue) > 0 {
			path := queue[0]
			queue = queue[1:]
			busy = true
			go func() { done <- w.process(ctx, path) }()
		}

		select {
		case <-ctx.Done():
			if busy {
				_ = w.runner.Stop()
				<-done
				_ = w.runner.Stop()
			}
			w.logger.Info("watch stopped",
				logging.String(logging.FieldEventType, "watch_stop"),
				logging.Int("queued", len(queue)),
			)
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				polling = true
				logging.WarnWithContext(w.logger, "fsnotify watcher closed, switching to polling", "watch_fallback",
					logging.String(logging.FieldImpact, "new files are detected on the poll interval"))
				continue
			}
			w.handleEvent(ev, pending, seen)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logging.WarnWithContext(w.logger, "fsnotify error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some file events may be missed until the next scan"))

		case <-ticker.C:
			if polling {
				w.scan(pending, seen)
			}
			queue = append(queue, w.promote(pending, seen)...)

		case out := <-done:
			busy = false
			if w.report(out) {
				pending[out.path] = &candidate{size: -1, stableSince: w.opts.Now()}
				delete(seen, out.path)
			}
		}
	}
}

func (w *Watcher) subscribe() (<-chan fsnotify.Event, <-chan error, func()) {
	noop := func() {}
	if w.opts.ForcePolling {
		return nil, nil, noop
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.WarnWithContext(w.logger, "fsnotify not available, falling back to polling", "watch_fallback",
			logging.Error(err))
		return nil, nil, noop
	}
	if err := watcher.Add(w.opts.Dir); err != nil {
		_ = watcher.Close()
		logging.WarnWithContext(w.logger, "failed to watch directory, falling back to polling", "watch_fallback",
			logging.String("dir", w.opts.Dir),
			logging.Error(err))
		return nil, nil, noop
	}
	return watcher.Events, watcher.Errors, func() { _ = watcher.Close() }
}

func (w *Watcher) handleEvent(ev fsnotify.Event, pending map[string]*candidate, seen map[string]struct{}) {
	path := filepath.Clean(ev.Name)
	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		delete(pending, path)
		delete(seen, path)
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if !pipeline.IsVideoFile(path) {
			return
		}
		if _, done := seen[path]; done {
			return
		}
		if _, ok := pending[path]; !ok {
			w.logger.Debug("video detected", logging.String("path", path))
			pending[path] = &candidate{size: -1, stableSince: w.opts.Now()}
		}
	}
}

// scan registers every video in the directory that is neither pending nor seen.
func (w *Watcher) scan(pending map[string]*candidate, seen map[string]struct{}) {
	for _, path := range w.listVideos() {
		if _, ok := seen[path]; ok {
			continue
		}
		if _, ok := pending[path]; !ok {
			pending[path] = &candidate{size: -1, stableSince: w.opts.Now()}
		}
	}
}

func (w *Watcher) listVideos() []string {
	entries, err := os.ReadDir(w.opts.Dir)
	if err != nil {
		w.logger.Debug("scan failed", logging.String("dir", w.opts.Dir), logging.Error(err))
		return nil
	}
	var videos []string
	for _, entry := range entries {
		if entry.IsDir() || !pipeline.IsVideoFile(entry.Name()) {
			continue
		}
		videos = append(videos, filepath.Join(w.opts.Dir, entry.Name()))
	}
	return videos
}

// promote returns the candidates whose size and mtime held still for the
// settle delay, in name order, and marks them seen.
func (w *Watcher) promote(pending map[string]*candidate, seen map[string]struct{}) []string {
	now := w.opts.Now()
	var ready []string
	for path, c := range pending {
		info, err := os.Stat(path)
		if err != nil {
			delete(pending, path)
			continue
		}
		if info.Size() != c.size || !info.ModTime().Equal(c.modTime) {
			c.size = info.Size()
			c.modTime = info.ModTime()
			c.stableSince = now
			if w.opts.SettleDelay > 0 {
				continue
			}
		}
		if now.Sub(c.stableSince) < w.opts.SettleDelay {
			continue
		}
		ready = append(ready, path)
	}
	sort.Strings(ready)
	for _, path := range ready {
		delete(pending, path)
		seen[path] = struct{}{}
	}
	return ready
}

func (w *Watcher) process(ctx context.Context, path string) outcome {
	if ctx.Err() != nil {
		return outcome{path: path, err: ctx.Err()}
	}
	req := pipeline.Request{Input: path, SRT: w.opts.SRT, TXT: w.opts.TXT, OutputDir: w.opts.OutputDir}
	w.logger.Info("queued video starting",
		logging.String(logging.FieldEventType, "watch_run_start"),
		logging.String("input", path),
	)
	res, err := w.runner.Run(ctx, req)
	return outcome{path: path, result: res, err: err}
}

// report logs an outcome and reports whether the file should be retried.
func (w *Watcher) report(out outcome) bool {
	switch {
	case errors.Is(out.err, services.ErrBusy):
		w.logger.Info("controller busy, will retry",
			logging.String(logging.FieldEventType, "watch_run_deferred"),
			logging.String("input", out.path),
		)
		return true
	case errors.Is(out.err, context.Canceled), errors.Is(out.err, context.DeadlineExceeded):
		return false
	case out.result.Status == pipeline.StatusCompleted:
		w.logger.Info("queued video completed",
			logging.String(logging.FieldEventType, "watch_run_complete"),
			logging.String("input", out.path),
			logging.Any("produced", out.result.Produced()),
		)
	case out.err != nil:
		logging.WarnWithContext(w.logger, "queued video failed", "watch_run_failed",
			logging.String("input", out.path),
			logging.Error(out.err),
			logging.String(logging.FieldImpact, "no subtitles were produced for this file"),
		)
	}
	return false
}
