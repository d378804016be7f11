package procrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// EventKind distinguishes process events.
type EventKind int

const (
	// Stdout carries a chunk read from standard output.
	Stdout EventKind = iota
	// Stderr carries a chunk read from standard error.
	Stderr
	// Exited reports a normal exit with Code.
	Exited
	// Abnormal reports a launch failure, a signal, or any exit without a status code.
	Abnormal
)

func (k EventKind) String() string {
	switch k {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	case Exited:
		return "exited"
	case Abnormal:
		return "abnormal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a single notification from a running process. Data is only set for
// Stdout/Stderr; Code only for Exited; Err only for Abnormal.
type Event struct {
	Kind EventKind
	Data []byte
	Code int
	Err  error
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind == Exited || e.Kind == Abnormal
}

// Success reports a zero exit code.
func (e Event) Success() bool {
	return e.Kind == Exited && e.Code == 0
}

// Handle is a launched process. Events delivers output chunks in arrival
// order followed by exactly one terminal event, then the channel is closed.
// Once Kill is called, further chunks are dropped and the terminal event is
// only delivered if the buffer has room; the channel is still closed.
type Handle interface {
	Events() <-chan Event
	// Kill terminates the process group if it is still running and waits at
	// most timeout for it to be reaped. It returns regardless of the outcome.
	Kill(timeout time.Duration)
}

// Runner launches external executables.
type Runner interface {
	Start(ctx context.Context, binary string, args []string) Handle
}

// ExecRunner runs real processes through os/exec.
type ExecRunner struct {
	// ChunkSize bounds a single read; zero uses DefaultChunkSize.
	ChunkSize int
}

// DefaultChunkSize is the read buffer used for each output stream.
const DefaultChunkSize = 4096

const eventBuffer = 64

// Start launches binary. Launch failures are reported on the returned handle
// as an Abnormal event; Start itself never fails.
func (r ExecRunner) Start(ctx context.Context, binary string, args []string) Handle {
	h := &execHandle{
		events: make(chan Event, eventBuffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	isolate(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.fail(fmt.Errorf("stdout pipe: %w", err))
		return h
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		h.fail(fmt.Errorf("stderr pipe: %w", err))
		return h
	}
	if err := cmd.Start(); err != nil {
		h.fail(fmt.Errorf("start %s: %w", binary, err))
		return h
	}
	h.cmd = cmd
	h.pipes = []io.Closer{stdout, stderr}

	size := r.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go h.pump(&wg, stdout, Stdout, size)
	go h.pump(&wg, stderr, Stderr, size)

	go func() {
		wg.Wait()
		waitErr := cmd.Wait()
		close(h.done)
		h.sendTerminal(terminalEvent(cmd, waitErr))
		close(h.events)
	}()
	return h
}

type execHandle struct {
	cmd      *exec.Cmd
	pipes    []io.Closer
	events   chan Event
	quit     chan struct{}
	done     chan struct{}
	killOnce sync.Once
}

func (h *execHandle) Events() <-chan Event { return h.events }

func (h *execHandle) Kill(timeout time.Duration) {
	h.killOnce.Do(func() {
		// After Kill the consumer may stop reading; quit unblocks pending sends.
		close(h.quit)
		select {
		case <-h.done:
			return
		default:
		}
		if h.cmd != nil {
			_ = killGroup(h.cmd)
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-h.done:
		case <-timer.C:
			// A descendant outside the group still holds the pipes.
			for _, p := range h.pipes {
				_ = p.Close()
			}
		}
	})
}

func (h *execHandle) fail(err error) {
	close(h.done)
	h.events <- Event{Kind: Abnormal, Err: err}
	close(h.events)
}

// send delivers an output chunk until Kill; afterwards chunks are dropped.
func (h *execHandle) send(ev Event) {
	select {
	case <-h.quit:
		return
	default:
	}
	select {
	case h.events <- ev:
	case <-h.quit:
	}
}

// sendTerminal blocks until the terminal event is delivered, or after Kill
// makes one attempt without blocking.
func (h *execHandle) sendTerminal(ev Event) {
	select {
	case h.events <- ev:
	case <-h.quit:
		select {
		case h.events <- ev:
		default:
		}
	}
}

func (h *execHandle) pump(wg *sync.WaitGroup, r io.Reader, kind EventKind, size int) {
	defer wg.Done()
	buf := make([]byte, size)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			h.send(Event{Kind: kind, Data: chunk})
		}
		if err != nil {
			return
		}
	}
}

func terminalEvent(cmd *exec.Cmd, waitErr error) Event {
	if waitErr == nil {
		return Event{Kind: Exited, Code: 0}
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && exitErr.Exited() {
		return Event{Kind: Exited, Code: exitErr.ExitCode()}
	}
	if cmd.ProcessState != nil && cmd.ProcessState.Exited() {
		return Event{Kind: Exited, Code: cmd.ProcessState.ExitCode()}
	}
	return Event{Kind: Abnormal, Err: waitErr}
}
