package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"
)

const (
	stderrTail = 4 << 10
	waitDelay  = 2 * time.Second
)

// Invocation is the fixed argument template for the solver. Only the core
// count varies between trials.
type Invocation struct {
	Binary    string
	LinksFile string
	NodesFile string
	NFAFile   string
	Threads   int
	TripFile  string
}

// Args returns the solver argument list for the given core count.
func (inv Invocation) Args(cores int) []string {
	return []string{
		"-g", inv.LinksFile,
		"-c", inv.NodesFile,
		"-N", inv.NFAFile,
		"-t", strconv.Itoa(inv.Threads),
		"-f", inv.TripFile,
		"-s", strconv.Itoa(cores),
	}
}

// Runner launches and times the solver binary.
type Runner struct {
	Invocation Invocation
	Logger     *slog.Logger
}

// NewRunner creates a Runner for the given invocation template.
func NewRunner(inv Invocation, logger *slog.Logger) *Runner {
	return &Runner{
		Invocation: inv,
		Logger:     logger.With(slog.String("solver", inv.Binary)),
	}
}

// Run executes the solver once with the given core count and blocks until
// it exits. Solver stdout is discarded. A non-positive timeout disables
// the per-invocation deadline.
//
// Stderr goes to a temporary file rather than a pipe, so Wait returns as
// soon as the solver exits even if a background child still holds the
// descriptor.
func (r *Runner) Run(
	ctx context.Context,
	cores int,
	timeout time.Duration,
) (Outcome, error) {
	parent := ctx

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out := Outcome{Cores: cores, ExitCode: -1}

	stderr, err := os.CreateTemp("", "tripbench-stderr-*")
	if err != nil {
		return out, r.fail(OpSpawn, cores, out, "",
			fmt.Errorf("create stderr file: %w", err))
	}
	defer func() {
		stderr.Close()
		os.Remove(stderr.Name())
	}()

	cmd := exec.CommandContext(ctx, r.Invocation.Binary,
		r.Invocation.Args(cores)...)
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()

	if err := cmd.Start(); err != nil {
		out.Elapsed = time.Since(start)

		return out, r.fail(OpSpawn, cores, out, "", err)
	}

	err = cmd.Wait()
	out.Elapsed = time.Since(start)

	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err == nil {
		r.Logger.Debug("solver finished",
			slog.Int("cores", cores),
			slog.Duration("wall_time", out.Elapsed),
		)

		return out, nil
	}

	tail := readTail(stderr, stderrTail)

	switch {
	case parent.Err() != nil:
		return out, r.fail(OpCanceled, cores, out, tail, parent.Err())
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		out.TimedOut = true

		return out, r.fail(OpTimeout, cores, out, tail, ctx.Err())
	default:
		return out, r.fail(OpExit, cores, out, tail, err)
	}
}

func (r *Runner) fail(
	op string,
	cores int,
	out Outcome,
	stderr string,
	err error,
) error {
	r.Logger.Warn("solver failed",
		slog.Int("cores", cores),
		slog.String("op", op),
		slog.Int("exit_code", out.ExitCode),
		slog.Duration("wall_time", out.Elapsed),
		slog.String("error", err.Error()),
	)

	return &InvocationError{
		Binary:   r.Invocation.Binary,
		Cores:    cores,
		Op:       op,
		ExitCode: out.ExitCode,
		Stderr:   stderr,
		Err:      err,
	}
}

// readTail returns at most the last limit bytes of f.
func readTail(f *os.File, limit int64) string {
	info, err := f.Stat()
	if err != nil {
		return ""
	}

	off := info.Size() - limit
	if off < 0 {
		off = 0
	}

	buf := make([]byte, info.Size()-off)

	n, err := f.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}

	return string(buf[:n])
}
