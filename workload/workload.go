// Package workload generates deterministic trip-request files for solver
// benchmarking. Each line is a single routing request in the form
// "id origin destination capacity flag".
package workload

import (
	"bufio"
	"fmt"
	"io"
	mrand "math/rand"
	"os"
	"strconv"
)

// Default generation policy observed in the benchmark scripts.
const (
	DefaultMaxNode  = 10
	DefaultCapacity = 10
	DefaultFlag     = 0
)

// Request is a single routing request handed to the solver.
type Request struct {
	ID          int
	Origin      int
	Destination int
	Capacity    int
	Flag        int
}

// Summary contains statistics about the generated workload.
type Summary struct {
	Requests int
	FirstID  int
	LastID   int
	MaxNode  int
}

// Config controls workload generation parameters.
type Config struct {
	NumRequests int
	MaxNode     int
	Capacity    int
	Flag        int
	FirstID     int
	Seed        int64
	// FixedPair draws one origin/destination pair and repeats it on every
	// line, as in the single-trip benchmark.
	FixedPair bool
}

// GenerationError reports a workload that could not be produced, either
// because the configuration is unsatisfiable or the trip file could not
// be written.
type GenerationError struct {
	Path string
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Path == "" {
		return "workload generation: " + e.Err.Error()
	}

	return fmt.Sprintf("workload generation %s: %v", e.Path, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Generator produces deterministic workloads from a Config.
type Generator struct {
	cfg  Config
	rng  *mrand.Rand
	pair *[2]int
}

// NewGenerator creates a Generator from the given Config.
func NewGenerator(cfg Config) *Generator {
	return &Generator{
		cfg: cfg,
		rng: mrand.New(mrand.NewSource(cfg.Seed)),
	}
}

func (g *Generator) validate() error {
	if g.cfg.NumRequests < 1 {
		return fmt.Errorf("request count must be positive, got %d",
			g.cfg.NumRequests)
	}

	if g.cfg.MaxNode < 2 {
		return fmt.Errorf("node range [1, %d] cannot hold two distinct nodes",
			g.cfg.MaxNode)
	}

	if g.cfg.FirstID < 0 {
		return fmt.Errorf("first id cannot be negative, got %d", g.cfg.FirstID)
	}

	return nil
}

// Requests draws the full request sequence without writing it anywhere.
func (g *Generator) Requests() ([]Request, error) {
	if err := g.validate(); err != nil {
		return nil, &GenerationError{Err: err}
	}

	reqs := make([]Request, g.cfg.NumRequests)
	for i := range reqs {
		reqs[i] = g.next(g.cfg.FirstID + i)
	}

	return reqs, nil
}

// Generate writes the workload to w, one request per line.
func (g *Generator) Generate(w io.Writer) (Summary, error) {
	summary, err := g.generate(w)
	if err != nil {
		return summary, &GenerationError{Err: err}
	}

	return summary, nil
}

// WriteFile generates the workload into path, truncating any previous
// content.
func (g *Generator) WriteFile(path string) (Summary, error) {
	if err := g.validate(); err != nil {
		return Summary{}, &GenerationError{Path: path, Err: err}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return Summary{}, &GenerationError{Path: path, Err: err}
	}

	summary, err := g.generate(f)
	if err != nil {
		f.Close()

		return summary, &GenerationError{Path: path, Err: err}
	}

	if err := f.Close(); err != nil {
		return summary, &GenerationError{Path: path, Err: err}
	}

	return summary, nil
}

func (g *Generator) generate(w io.Writer) (Summary, error) {
	var summary Summary

	if err := g.validate(); err != nil {
		return summary, err
	}

	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 64)

	for i := 0; i < g.cfg.NumRequests; i++ {
		req := g.next(g.cfg.FirstID + i)

		buf = appendRequest(buf[:0], req)
		if _, err := bw.Write(buf); err != nil {
			return summary, fmt.Errorf("write request %d: %w", req.ID, err)
		}

		summary.Requests++
	}

	if err := bw.Flush(); err != nil {
		return summary, fmt.Errorf("flush: %w", err)
	}

	summary.FirstID = g.cfg.FirstID
	summary.LastID = g.cfg.FirstID + summary.Requests - 1
	summary.MaxNode = g.cfg.MaxNode

	return summary, nil
}

// next draws a request; the destination is redrawn until it differs from
// the origin, so MaxNode must be at least 2.
func (g *Generator) next(id int) Request {
	origin, dest := g.endpoints()

	return Request{
		ID:          id,
		Origin:      origin,
		Destination: dest,
		Capacity:    g.cfg.Capacity,
		Flag:        g.cfg.Flag,
	}
}

func (g *Generator) endpoints() (int, int) {
	if g.cfg.FixedPair && g.pair != nil {
		return g.pair[0], g.pair[1]
	}

	origin := g.node()

	dest := g.node()
	for dest == origin {
		dest = g.node()
	}

	if g.cfg.FixedPair {
		g.pair = &[2]int{origin, dest}
	}

	return origin, dest
}

func (g *Generator) node() int {
	return 1 + g.rng.Intn(g.cfg.MaxNode)
}

func appendRequest(buf []byte, r Request) []byte {
	buf = strconv.AppendInt(buf, int64(r.ID), 10)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(r.Origin), 10)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(r.Destination), 10)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(r.Capacity), 10)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(r.Flag), 10)

	return append(buf, '\n')
}
