package procrun_test

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidsub/internal/procrun"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func collect(t *testing.T, h procrun.Handle) (stdout, stderr string, terminal procrun.Event) {
	t.Helper()
	var out, errOut strings.Builder
	terminals := 0
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				if terminals != 1 {
					t.Fatalf("expected exactly one terminal event, got %d", terminals)
				}
				return out.String(), errOut.String(), terminal
			}
			switch ev.Kind {
			case procrun.Stdout:
				out.Write(ev.Data)
			case procrun.Stderr:
				errOut.Write(ev.Data)
			default:
				terminals++
				terminal = ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for process events")
		}
	}
}

func TestExecRunnerStreamsOutputAndExitCode(t *testing.T) {
	requireShell(t)
	h := procrun.ExecRunner{}.Start(context.Background(), "sh", []string{"-c", "printf 'out-1\\nout-2'; printf 'err' >&2; exit 3"})
	stdout, stderr, term := collect(t, h)
	if stdout != "out-1\nout-2" {
		t.Fatalf("unexpected stdout %q", stdout)
	}
	if stderr != "err" {
		t.Fatalf("unexpected stderr %q", stderr)
	}
	if term.Kind != procrun.Exited || term.Code != 3 {
		t.Fatalf("unexpected terminal %+v", term)
	}
	if term.Success() {
		t.Fatal("exit 3 must not be success")
	}
}

func TestExecRunnerSmallChunksPreserveOrder(t *testing.T) {
	requireShell(t)
	h := procrun.ExecRunner{ChunkSize: 3}.Start(context.Background(), "sh", []string{"-c", "printf 'abcdefghij'"})
	stdout, _, term := collect(t, h)
	if stdout != "abcdefghij" {
		t.Fatalf("chunks reordered or lost: %q", stdout)
	}
	if !term.Success() {
		t.Fatalf("unexpected terminal %+v", term)
	}
}

func TestExecRunnerLaunchFailureIsAbnormal(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	h := procrun.ExecRunner{}.Start(context.Background(), missing, nil)
	_, _, term := collect(t, h)
	if term.Kind != procrun.Abnormal || term.Err == nil {
		t.Fatalf("expected abnormal launch failure, got %+v", term)
	}
}

func TestKillTerminatesWithinTimeout(t *testing.T) {
	requireShell(t)
	h := procrun.ExecRunner{}.Start(context.Background(), "sh", []string{"-c", "exec sleep 30"})
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	h.Kill(time.Second)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("kill took too long: %s", elapsed)
	}
	_, _, term := collect(t, h)
	if term.Kind != procrun.Abnormal {
		t.Fatalf("killed process should report abnormal, got %+v", term)
	}
	// Second kill is a no-op.
	h.Kill(time.Second)
}

// drainClosed reads events until the channel closes.
func drainClosed(t *testing.T, h procrun.Handle, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-h.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("events channel still open %s after Kill", timeout)
		}
	}
}

func TestKillReachesChildrenOfWrapperScript(t *testing.T) {
	requireShell(t)
	h := procrun.ExecRunner{}.Start(context.Background(), "sh", []string{"-c", "sleep 30; echo done"})
	time.Sleep(100 * time.Millisecond)

	h.Kill(time.Second)
	drainClosed(t, h, 3*time.Second)
}

func TestKillWithUndrainedOutputReturnsPromptly(t *testing.T) {
	requireShell(t)
	if _, err := exec.LookPath("yes"); err != nil {
		t.Skip("yes not available")
	}
	h := procrun.ExecRunner{}.Start(context.Background(), "sh", []string{"-c", "exec yes"})
	// Let the event buffer fill while nobody reads.
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	h.Kill(5 * time.Second)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("kill waited %s for a process that died at once", elapsed)
	}
	drainClosed(t, h, 3*time.Second)
}

func TestKillAfterExitDoesNothing(t *testing.T) {
	requireShell(t)
	h := procrun.ExecRunner{}.Start(context.Background(), "sh", []string{"-c", "exit 0"})
	_, _, term := collect(t, h)
	if !term.Success() {
		t.Fatalf("unexpected terminal %+v", term)
	}
	h.Kill(time.Second)
}

func TestEventKindString(t *testing.T) {
	if procrun.Stderr.String() != "stderr" || procrun.Abnormal.String() != "abnormal" {
		t.Fatal("unexpected kind labels")
	}
}
