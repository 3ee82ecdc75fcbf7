// Package harness launches the routing solver binary and times each
// invocation.
package harness

import (
	"errors"
	"fmt"
	"time"
)

// Outcome is the measurement taken for a single solver invocation.
type Outcome struct {
	Cores    int
	Elapsed  time.Duration
	ExitCode int
	TimedOut bool
}

// Seconds returns the elapsed wall-clock time in seconds.
func (o Outcome) Seconds() float64 {
	return o.Elapsed.Seconds()
}

// Invocation failure stages.
const (
	OpSpawn    = "spawn"
	OpExit     = "exit"
	OpTimeout  = "timeout"
	OpCanceled = "canceled"
)

// InvocationError reports a solver run that did not complete successfully.
type InvocationError struct {
	Binary   string
	Cores    int
	Op       string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *InvocationError) Error() string {
	msg := fmt.Sprintf("solver %s (cores=%d) %s: %v",
		e.Binary, e.Cores, e.Op, e.Err)
	if e.Stderr != "" {
		msg += "\nstderr: " + e.Stderr
	}

	return msg
}

func (e *InvocationError) Unwrap() error { return e.Err }

// TimedOut reports whether the child was killed by the invocation timeout.
func (e *InvocationError) TimedOut() bool { return e.Op == OpTimeout }

// IsSpawn reports whether err is an InvocationError raised because the
// solver binary could not be started at all.
func IsSpawn(err error) bool {
	var invErr *InvocationError

	return errors.As(err, &invErr) && invErr.Op == OpSpawn
}
