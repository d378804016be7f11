package testsupport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vidsub/internal/procrun"
)

// Script describes how a fake process behaves.
type Script struct {
	Events []procrun.Event
	// Hold keeps the process "running" after Events until it is killed; the
	// kill is then reported as an Abnormal terminal event.
	Hold bool
	// Held, when non-nil, is closed once every event has been consumed and the
	// process is holding.
	Held chan struct{}
	// OnStart runs synchronously at launch, e.g. to create output files.
	OnStart func(args []string)
}

// Call records a launch.
type Call struct {
	Binary string
	Args   []string
}

// FakeRunner satisfies procrun.Runner with scripted processes keyed by binary.
// Unknown binaries behave like a launch failure.
type FakeRunner struct {
	mu      sync.Mutex
	scripts map[string]Script
	calls   []Call
	kills   int
}

// NewFakeRunner returns an empty runner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{scripts: map[string]Script{}}
}

// Script registers the behaviour for binary.
func (f *FakeRunner) Script(binary string, script Script) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[binary] = script
}

// Calls returns the launches so far.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Kills returns how many handles were killed while running.
func (f *FakeRunner) Kills() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kills
}

// Start implements procrun.Runner.
func (f *FakeRunner) Start(_ context.Context, binary string, args []string) procrun.Handle {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Binary: binary, Args: append([]string(nil), args...)})
	script, ok := f.scripts[binary]
	f.mu.Unlock()

	h := &fakeHandle{
		runner: f,
		events: make(chan procrun.Event),
		killed: make(chan struct{}),
		exited: make(chan struct{}),
	}
	if !ok {
		script = Script{Events: []procrun.Event{{Kind: procrun.Abnormal, Err: errors.New("executable not found")}}}
	}
	if script.OnStart != nil {
		script.OnStart(args)
	}
	go h.play(script)
	return h
}

type fakeHandle struct {
	runner   *FakeRunner
	events   chan procrun.Event
	killed   chan struct{}
	exited   chan struct{}
	killOnce sync.Once
}

func (h *fakeHandle) Events() <-chan procrun.Event { return h.events }

func (h *fakeHandle) Kill(timeout time.Duration) {
	h.killOnce.Do(func() {
		select {
		case <-h.exited:
		default:
			h.runner.mu.Lock()
			h.runner.kills++
			h.runner.mu.Unlock()
		}
		close(h.killed)
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-h.exited:
		case <-timer.C:
		}
	})
}

func (h *fakeHandle) play(script Script) {
	defer close(h.events)
	defer close(h.exited)
	terminated := false
	for _, ev := range script.Events {
		if !h.send(ev) {
			h.send(procrun.Event{Kind: procrun.Abnormal, Err: errors.New("killed")})
			return
		}
		if ev.Terminal() {
			terminated = true
			break
		}
	}
	if script.Hold {
		if script.Held != nil {
			close(script.Held)
		}
		<-h.killed
		h.send(procrun.Event{Kind: procrun.Abnormal, Err: errors.New("killed")})
		return
	}
	if !terminated {
		h.send(procrun.Event{Kind: procrun.Exited, Code: 0})
	}
}

// send delivers ev unless the handle was killed first.
func (h *fakeHandle) send(ev procrun.Event) bool {
	select {
	case <-h.killed:
		return false
	default:
	}
	select {
	case h.events <- ev:
		return true
	case <-h.killed:
		return false
	}
}

// Stdout builds a stdout chunk event.
func Stdout(text string) procrun.Event {
	return procrun.Event{Kind: procrun.Stdout, Data: []byte(text)}
}

// Stderr builds a stderr chunk event.
func Stderr(text string) procrun.Event {
	return procrun.Event{Kind: procrun.Stderr, Data: []byte(text)}
}

// Exit builds a normal exit event.
func Exit(code int) procrun.Event {
	return procrun.Event{Kind: procrun.Exited, Code: code}
}

// WaitClosed fails the test if ch is not closed within timeout.
func WaitClosed(t testing.TB, ch <-chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %s", timeout)
	}
}
