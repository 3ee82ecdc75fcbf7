package harness

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeSolver drops an executable shell script standing in for the solver.
func writeSolver(t *testing.T, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell script solvers need a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "solver")
	script := "#!/bin/sh\n" + body + "\n"

	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write solver script: %v", err)
	}

	return path
}

func TestInvocationArgs(t *testing.T) {
	inv := Invocation{
		Binary:    "../src/new_main",
		LinksFile: "network-links.txt",
		NodesFile: "network-nodes.txt",
		NFAFile:   "nfa_main.txt",
		Threads:   12,
		TripFile:  "test-trip-file.txt",
	}

	got := strings.Join(inv.Args(4), " ")
	want := "-g network-links.txt -c network-nodes.txt -N nfa_main.txt " +
		"-t 12 -f test-trip-file.txt -s 4"

	if got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestRunPassesArgs(t *testing.T) {
	argsOut := filepath.Join(t.TempDir(), "args")
	bin := writeSolver(t, `echo "$@" > "`+argsOut+`"`)

	runner := NewRunner(Invocation{
		Binary:    bin,
		LinksFile: "links",
		NodesFile: "nodes",
		NFAFile:   "nfa",
		Threads:   12,
		TripFile:  "trips",
	}, testLogger())

	out, err := runner.Run(context.Background(), 8, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if out.Cores != 8 {
		t.Errorf("cores = %d, want 8", out.Cores)
	}
	if out.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", out.ExitCode)
	}

	data, err := os.ReadFile(argsOut)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}

	want := "-g links -c nodes -N nfa -t 12 -f trips -s 8"
	if got := strings.TrimSpace(string(data)); got != want {
		t.Errorf("solver saw %q, want %q", got, want)
	}
}

func TestRunMeasuresWallTime(t *testing.T) {
	bin := writeSolver(t, "sleep 0.2\necho lots of output")
	runner := NewRunner(Invocation{Binary: bin}, testLogger())

	out, err := runner.Run(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if out.Elapsed < 200*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 200ms", out.Elapsed)
	}
	if out.Seconds() != out.Elapsed.Seconds() {
		t.Errorf("Seconds() = %v, want %v", out.Seconds(), out.Elapsed.Seconds())
	}
}

func TestRunNonZeroExit(t *testing.T) {
	bin := writeSolver(t, "echo 'bad trip file' >&2\nexit 3")
	runner := NewRunner(Invocation{Binary: bin}, testLogger())

	out, err := runner.Run(context.Background(), 2, 0)

	var invErr *InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvocationError, got %v", err)
	}

	if invErr.Op != OpExit {
		t.Errorf("op = %q, want %q", invErr.Op, OpExit)
	}
	if invErr.ExitCode != 3 || out.ExitCode != 3 {
		t.Errorf("exit code = %d/%d, want 3", invErr.ExitCode, out.ExitCode)
	}
	if !strings.Contains(invErr.Stderr, "bad trip file") {
		t.Errorf("stderr = %q, want solver diagnostics", invErr.Stderr)
	}
	if IsSpawn(err) {
		t.Error("non-zero exit must not be reported as spawn failure")
	}
}

func TestRunMissingBinary(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "does-not-exist")
	runner := NewRunner(Invocation{Binary: bin}, testLogger())

	_, err := runner.Run(context.Background(), 1, 0)
	if err == nil {
		t.Fatal("expected error for missing binary")
	}

	if !IsSpawn(err) {
		t.Errorf("expected spawn failure, got %v", err)
	}
}

func TestRunNotExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}

	path := filepath.Join(t.TempDir(), "solver")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatalf("write solver: %v", err)
	}

	_, err := NewRunner(Invocation{Binary: path}, testLogger()).
		Run(context.Background(), 1, 0)

	if !IsSpawn(err) {
		t.Errorf("expected spawn failure, got %v", err)
	}
}

func TestRunTimeout(t *testing.T) {
	bin := writeSolver(t, "exec sleep 5")
	runner := NewRunner(Invocation{Binary: bin}, testLogger())

	start := time.Now()
	out, err := runner.Run(context.Background(), 4, 100*time.Millisecond)

	var invErr *InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvocationError, got %v", err)
	}

	if !invErr.TimedOut() || !out.TimedOut {
		t.Errorf("expected timed out outcome, got op %q", invErr.Op)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Error("timeout did not kill the solver")
	}
}

func TestRunCanceled(t *testing.T) {
	bin := writeSolver(t, "exec sleep 5")
	runner := NewRunner(Invocation{Binary: bin}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := runner.Run(ctx, 1, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr.TimedOut() {
		t.Error("cancellation must not be reported as timeout")
	}
}

func TestRunIgnoresLingeringChild(t *testing.T) {
	// The background sleep keeps the solver's stderr open after it exits.
	bin := writeSolver(t, "(sleep 5) &\nexit 0")
	runner := NewRunner(Invocation{Binary: bin}, testLogger())

	out, err := runner.Run(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if out.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", out.ExitCode)
	}
	if out.Elapsed >= waitDelay {
		t.Errorf("elapsed = %v, clock kept running after the solver exited",
			out.Elapsed)
	}
}

func TestReadTail(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stderr")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer f.Close()

	if got := readTail(f, 8); got != "" {
		t.Errorf("tail of empty file = %q", got)
	}

	f.WriteString("hello world")
	if got := readTail(f, 8); got != "lo world" {
		t.Errorf("tail = %q, want %q", got, "lo world")
	}
	if got := readTail(f, 64); got != "hello world" {
		t.Errorf("tail = %q, want %q", got, "hello world")
	}
}

func TestResolveBinary(t *testing.T) {
	dir := t.TempDir()

	got, err := ResolveBinary(BuildConfig{Dir: dir, Binary: "new_main"})
	if err != nil {
		t.Fatalf("ResolveBinary failed: %v", err)
	}
	if want := filepath.Join(dir, "new_main"); got != want {
		t.Errorf("binary = %q, want %q", got, want)
	}

	abs := filepath.Join(dir, "bin", "solver")
	got, err = ResolveBinary(BuildConfig{Dir: "elsewhere", Binary: abs})
	if err != nil {
		t.Fatalf("ResolveBinary failed: %v", err)
	}
	if got != abs {
		t.Errorf("binary = %q, want %q", got, abs)
	}

	if _, err := ResolveBinary(BuildConfig{Dir: dir}); err == nil {
		t.Error("expected error for empty binary path")
	}
}
