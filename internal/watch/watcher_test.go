package watch_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vidsub/internal/pipeline"
	"vidsub/internal/services"
	"vidsub/internal/testsupport"
	"vidsub/internal/watch"
)

type fakeRunner struct {
	mu       sync.Mutex
	requests []pipeline.Request
	busyOnce bool
	block    chan struct{}
	started  chan struct{}
	stops    int
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	busy := f.busyOnce
	f.busyOnce = false
	block, started := f.block, f.started
	f.mu.Unlock()

	if busy {
		return pipeline.Result{}, services.Wrap(services.ErrBusy, "", "start", "a run is already in progress", nil)
	}
	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
		return pipeline.Result{Request: req, Status: pipeline.StatusCancelled}, nil
	}
	return pipeline.Result{Request: req, Status: pipeline.StatusCompleted}, nil
}

func (f *fakeRunner) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.block != nil {
		close(f.block)
		f.block = nil
		return nil
	}
	return services.Wrap(services.ErrNotRunning, "", "stop", "nothing to stop", nil)
}

func (f *fakeRunner) inputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, req := range f.requests {
		out = append(out, req.Input)
	}
	return out
}

// startWatcher runs a watcher in the background and returns a function that
// cancels it and reports Run's result. Cleanup calls it too.
func startWatcher(t *testing.T, runner watch.Runner, opts watch.Options) func() error {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = 20 * time.Millisecond
	}
	opts.SRT = true
	w, err := watch.New(runner, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	var (
		once   sync.Once
		runErr error
	)
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case runErr = <-errCh:
			case <-time.After(2 * time.Second):
				runErr = errors.New("watcher did not stop")
			}
		})
		return runErr
	}
	t.Cleanup(func() {
		if err := stop(); err != nil {
			t.Error(err)
		}
	})
	return stop
}

func waitForInputs(t *testing.T, f *fakeRunner, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.inputs(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d runs, got %v", n, f.inputs())
	return nil
}

func TestNewValidatesOptions(t *testing.T) {
	dir := t.TempDir()
	if _, err := watch.New(&fakeRunner{}, watch.Options{SRT: true}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("missing dir: expected validation error, got %v", err)
	}
	if _, err := watch.New(&fakeRunner{}, watch.Options{Dir: dir}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("no sinks: expected validation error, got %v", err)
	}
	file := testsupport.WriteVideo(t, dir, "a.mp4")
	if _, err := watch.New(&fakeRunner{}, watch.Options{Dir: file, SRT: true}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("file as dir: expected validation error, got %v", err)
	}
}

func TestIncludeExistingQueuesVideosInOrder(t *testing.T) {
	dir := t.TempDir()
	b := testsupport.WriteVideo(t, dir, "b.MKV")
	a := testsupport.WriteVideo(t, dir, "a.mp4")
	testsupport.WriteContent(t, filepath.Join(dir, "notes.txt"), "skip me")

	runner := &fakeRunner{}
	startWatcher(t, runner, watch.Options{Dir: dir, IncludeExisting: true, ForcePolling: true})

	got := waitForInputs(t, runner, 2)
	if got[0] != a || got[1] != b {
		t.Fatalf("unexpected order %v", got)
	}
	time.Sleep(50 * time.Millisecond)
	if n := len(runner.inputs()); n != 2 {
		t.Fatalf("files must be processed once, got %d runs", n)
	}
}

func TestExistingFilesIgnoredByDefault(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteVideo(t, dir, "old.mp4")
	runner := &fakeRunner{}
	startWatcher(t, runner, watch.Options{Dir: dir, ForcePolling: true})

	fresh := testsupport.WriteVideo(t, dir, "new.mov")
	got := waitForInputs(t, runner, 1)
	if got[0] != fresh {
		t.Fatalf("expected only the new file, got %v", got)
	}
}

func TestVideoCreatedBeforeRunIsQueued(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteVideo(t, dir, "old.mp4")
	runner := &fakeRunner{}
	w, err := watch.New(runner, watch.Options{
		Dir:          dir,
		SRT:          true,
		PollInterval: 10 * time.Millisecond,
		SettleDelay:  20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fresh := testsupport.WriteVideo(t, dir, "late.mkv")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})

	got := waitForInputs(t, runner, 1)
	if got[0] != fresh {
		t.Fatalf("expected only the file created after New, got %v", got)
	}
	time.Sleep(50 * time.Millisecond)
	if n := len(runner.inputs()); n != 1 {
		t.Fatalf("expected one run, got %v", runner.inputs())
	}
}

func TestFsnotifyDetectsNewVideo(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{}
	startWatcher(t, runner, watch.Options{Dir: dir})

	// Give the watcher a moment to register the directory.
	time.Sleep(30 * time.Millisecond)
	path := testsupport.WriteVideo(t, dir, "clip.avi")
	testsupport.WriteContent(t, filepath.Join(dir, "clip.srt"), "1\n")

	got := waitForInputs(t, runner, 1)
	if got[0] != path {
		t.Fatalf("unexpected input %v", got)
	}
}

func TestBusyControllerIsRetried(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteVideo(t, dir, "talk.wmv")
	runner := &fakeRunner{busyOnce: true}
	startWatcher(t, runner, watch.Options{Dir: dir, IncludeExisting: true, ForcePolling: true})

	got := waitForInputs(t, runner, 2)
	if got[0] != path || got[1] != path {
		t.Fatalf("expected the same file twice, got %v", got)
	}
}

func TestCancelStopsActiveRun(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteVideo(t, dir, "long.mp4")
	runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{})}
	stop := startWatcher(t, runner, watch.Options{Dir: dir, IncludeExisting: true, ForcePolling: true})

	testsupport.WaitClosed(t, runner.started, 3*time.Second)
	if err := stop(); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	runner.mu.Lock()
	stops := runner.stops
	runner.mu.Unlock()
	if stops == 0 {
		t.Fatal("expected Stop to be called on the active run")
	}
}
