// Package config loads tripbench run files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/weiihann/tripbench/sweep"
	"github.com/weiihann/tripbench/workload"
)

// File is the top-level run configuration.
type File struct {
	LogLevel string   `yaml:"log_level"`
	Solver   Solver   `yaml:"solver"`
	Workload Workload `yaml:"workload"`
	Sweep    Sweep    `yaml:"sweep"`
	Report   Report   `yaml:"report"`
}

// Solver describes the solver binary and its static inputs.
type Solver struct {
	Binary      string `yaml:"binary"`
	BuildDir    string `yaml:"build_dir,omitempty"`
	BuildTarget string `yaml:"build_target,omitempty"`
	Links       string `yaml:"links"`
	Nodes       string `yaml:"nodes"`
	NFA         string `yaml:"nfa"`
	Threads     int    `yaml:"threads"`
	Timeout     string `yaml:"timeout,omitempty"` // e.g. "10m", empty disables
}

// Workload describes the generated trip file. Each entry in Requests is a
// separate suite.
type Workload struct {
	Path      string `yaml:"path"`
	Requests  []int  `yaml:"requests"`
	MaxNode   int    `yaml:"max_node"`
	Capacity  int    `yaml:"capacity"`
	Flag      int    `yaml:"flag"`
	FirstID   int    `yaml:"first_id"`
	FixedPair bool   `yaml:"fixed_pair"`
	Seed      int64  `yaml:"seed"` // 0 = current time
}

// Sweep describes the core-count axis.
type Sweep struct {
	Cores     []int  `yaml:"cores"`
	Trials    int    `yaml:"trials"`
	OnFailure string `yaml:"on_failure"` // abort, skip, retry
}

// Report describes where tables are written.
type Report struct {
	Dir       string `yaml:"dir"`
	Prefix    string `yaml:"prefix"`
	Delimiter string `yaml:"delimiter"` // ",", ";", "tab"
}

// Defaults returns the configuration used by the original benchmark runs.
func Defaults() *File {
	return &File{
		LogLevel: "info",
		Solver: Solver{
			Binary:  "../src/new_main",
			Links:   "network-links.txt",
			Nodes:   "network-nodes.txt",
			NFA:     "nfa_main.txt",
			Threads: 12,
		},
		Workload: Workload{
			Path:     "test-trip-file.txt",
			Requests: []int{1000},
			MaxNode:  workload.DefaultMaxNode,
			Capacity: workload.DefaultCapacity,
			Flag:     workload.DefaultFlag,
		},
		Sweep: Sweep{
			Cores:     []int{1, 2, 4, 8},
			Trials:    100,
			OnFailure: string(sweep.PolicySkip),
		},
		Report: Report{
			Dir:       ".",
			Prefix:    "test_data",
			Delimiter: ",",
		},
	}
}

// Load reads a run file, layering it over Defaults.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// ParseYAML decodes data over Defaults and validates the result.
func ParseYAML(data []byte) (*File, error) {
	cfg := Defaults()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the harness cannot run.
func (f *File) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(f.LogLevel)] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", f.LogLevel)
	}

	if err := f.Solver.validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}

	if err := f.Workload.validate(); err != nil {
		return fmt.Errorf("workload: %w", err)
	}

	if err := f.Sweep.validate(); err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	if _, err := f.Report.DelimiterRune(); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	return nil
}

func (s Solver) validate() error {
	if s.Binary == "" {
		return fmt.Errorf("binary cannot be empty")
	}

	if s.Threads <= 0 {
		return fmt.Errorf("threads must be positive, got %d", s.Threads)
	}

	if _, err := s.GetTimeout(); err != nil {
		return err
	}

	return nil
}

// GetTimeout parses the per-invocation timeout. Empty means no timeout.
func (s Solver) GetTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %s: %w", s.Timeout, err)
	}

	if d < 0 {
		return 0, fmt.Errorf("timeout cannot be negative, got %s", s.Timeout)
	}

	return d, nil
}

func (w Workload) validate() error {
	if w.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if len(w.Requests) == 0 {
		return fmt.Errorf("at least one request count must be defined")
	}

	for _, n := range w.Requests {
		if n < 1 {
			return fmt.Errorf("request count must be positive, got %d", n)
		}
	}

	if w.MaxNode < 2 {
		return fmt.Errorf("max_node must be at least 2, got %d", w.MaxNode)
	}

	if w.FirstID < 0 {
		return fmt.Errorf("first_id cannot be negative, got %d", w.FirstID)
	}

	return nil
}

func (s Sweep) validate() error {
	if len(s.Cores) == 0 {
		return fmt.Errorf("at least one core count must be defined")
	}

	seen := make(map[int]bool, len(s.Cores))
	for _, c := range s.Cores {
		if c <= 0 {
			return fmt.Errorf("core count must be positive, got %d", c)
		}
		if seen[c] {
			return fmt.Errorf("duplicate core count: %d", c)
		}
		seen[c] = true
	}

	if s.Trials <= 0 {
		return fmt.Errorf("trials must be positive, got %d", s.Trials)
	}

	if _, err := sweep.ParsePolicy(s.OnFailure); err != nil {
		return err
	}

	return nil
}

// DelimiterRune returns the column delimiter as a rune.
func (r Report) DelimiterRune() (rune, error) {
	switch r.Delimiter {
	case "", ",":
		return ',', nil
	case "tab", `\t`, "\t":
		return '\t', nil
	}

	runes := []rune(r.Delimiter)
	if len(runes) != 1 || runes[0] == '"' || runes[0] == '\n' || runes[0] == '\r' {
		return 0, fmt.Errorf("invalid delimiter %q", r.Delimiter)
	}

	return runes[0], nil
}

// Path returns the report file for the given 1-based suite number.
func (r Report) Path(suite int) string {
	return filepath.Join(r.Dir, fmt.Sprintf("%s%d.csv", r.Prefix, suite))
}

// Title returns the title row for the given 1-based suite number.
func Title(suite int) string {
	return fmt.Sprintf("Test%d", suite)
}
