// Package sweep drives the core-count sweep: every configuration is
// measured with a fixed number of strictly sequential solver runs.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/weiihann/tripbench/harness"
)

// Policy decides what happens when a single trial fails.
type Policy string

// Supported failure policies.
const (
	// PolicyAbort stops the sweep at the first failed trial.
	PolicyAbort Policy = "abort"
	// PolicySkip records the failed trial as missing and moves on.
	PolicySkip Policy = "skip"
	// PolicyRetry reruns a failed trial once before recording it missing.
	PolicyRetry Policy = "retry"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyAbort, PolicySkip, PolicyRetry:
		return p, nil
	default:
		return "", fmt.Errorf(
			"unknown failure policy %q (must be abort, skip, or retry)", s,
		)
	}
}

// Invoker runs the solver once for a core count.
type Invoker interface {
	Run(ctx context.Context, cores int, timeout time.Duration) (harness.Outcome, error)
}

// Config controls a sweep.
type Config struct {
	Cores   []int
	Trials  int
	Timeout time.Duration
	Policy  Policy
}

// Scheduler runs the sweep against an Invoker.
type Scheduler struct {
	cfg     Config
	invoker Invoker
	logger  *slog.Logger

	// OnColumn, when set, is called after the last trial of each core
	// count with the column index.
	OnColumn func(m *Matrix, col int)
}

// New validates cfg and creates a Scheduler.
func New(cfg Config, invoker Invoker, logger *slog.Logger) (*Scheduler, error) {
	if len(cfg.Cores) == 0 {
		return nil, fmt.Errorf("at least one core count is required")
	}

	seen := make(map[int]bool, len(cfg.Cores))
	for _, c := range cfg.Cores {
		if c < 1 {
			return nil, fmt.Errorf("core count must be positive, got %d", c)
		}
		if seen[c] {
			return nil, fmt.Errorf("duplicate core count %d", c)
		}
		seen[c] = true
	}

	if cfg.Trials < 1 {
		return nil, fmt.Errorf("trial count must be positive, got %d", cfg.Trials)
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative, got %s", cfg.Timeout)
	}

	if cfg.Policy == "" {
		cfg.Policy = PolicySkip
	}

	if _, err := ParsePolicy(string(cfg.Policy)); err != nil {
		return nil, err
	}

	cfg.Cores = append([]int(nil), cfg.Cores...)

	return &Scheduler{
		cfg:     cfg,
		invoker: invoker,
		logger:  logger.With(slog.String("policy", string(cfg.Policy))),
	}, nil
}

// Run performs the sweep. The returned matrix always has one column per
// core count and Trials cells per column. On abort the partially filled
// matrix is returned together with the error.
func (s *Scheduler) Run(ctx context.Context) (*Matrix, error) {
	m := NewMatrix(s.cfg.Cores, s.cfg.Trials)

	for col, cores := range s.cfg.Cores {
		s.logger.InfoContext(ctx, "sweeping configuration",
			slog.Int("cores", cores),
			slog.Int("trials", s.cfg.Trials),
		)

		for trial := 0; trial < s.cfg.Trials; trial++ {
			if err := ctx.Err(); err != nil {
				return m, err
			}

			cell, err := s.trial(ctx, cores, trial)
			if err != nil {
				return m, err
			}

			if err := m.Set(col, trial, cell); err != nil {
				return m, err
			}
		}

		if s.OnColumn != nil {
			s.OnColumn(m, col)
		}
	}

	if missing := m.MissingCount(); missing > 0 {
		s.logger.WarnContext(ctx, "sweep finished with missing trials",
			slog.Int("missing", missing),
		)
	}

	return m, nil
}

// trial runs one measurement and applies the failure policy. A returned
// error aborts the sweep.
func (s *Scheduler) trial(ctx context.Context, cores, trial int) (Cell, error) {
	attempts := 1
	if s.cfg.Policy == PolicyRetry {
		attempts = 2
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := s.invoker.Run(ctx, cores, s.cfg.Timeout)
		if err == nil {
			return Cell{Seconds: out.Seconds()}, nil
		}

		lastErr = err

		// Nothing later in the sweep can succeed if the binary will not
		// start, and a canceled run has no trials left to measure.
		if harness.IsSpawn(err) || ctx.Err() != nil {
			return Cell{}, fmt.Errorf("trial %d (cores=%d): %w", trial, cores, err)
		}

		if s.cfg.Policy == PolicyAbort {
			return Cell{}, fmt.Errorf("trial %d (cores=%d): %w", trial, cores, err)
		}

		s.logger.WarnContext(ctx, "trial failed",
			slog.Int("cores", cores),
			slog.Int("trial", trial),
			slog.Int("attempt", attempt),
			slog.Bool("timed_out", isTimeout(err)),
		)
	}

	return Cell{Missing: true, Err: lastErr.Error()}, nil
}

func isTimeout(err error) bool {
	var invErr *harness.InvocationError

	return errors.As(err, &invErr) && invErr.TimedOut()
}
