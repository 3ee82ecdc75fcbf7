package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// BuildConfig describes how to build the solver binary before a sweep.
type BuildConfig struct {
	// Dir is the solver source directory containing the Makefile.
	Dir string
	// Target is an optional make target; empty builds the default goal.
	Target string
	// Binary is the path the build is expected to produce.
	Binary string
}

// ResolveBinary returns an absolute solver path. Relative paths are taken
// relative to the build directory when one is configured, otherwise
// relative to the working directory.
func ResolveBinary(cfg BuildConfig) (string, error) {
	bin := cfg.Binary
	if bin == "" {
		return "", fmt.Errorf("solver binary path is empty")
	}

	if !filepath.IsAbs(bin) && cfg.Dir != "" && filepath.Dir(bin) == "." {
		bin = filepath.Join(cfg.Dir, bin)
	}

	abs, err := filepath.Abs(bin)
	if err != nil {
		return "", fmt.Errorf("resolve solver binary %s: %w", bin, err)
	}

	return abs, nil
}

// Build runs make in the solver source directory and returns the resolved
// binary path.
func Build(
	ctx context.Context,
	logger *slog.Logger,
	cfg BuildConfig,
) (string, error) {
	binPath, err := ResolveBinary(cfg)
	if err != nil {
		return "", err
	}

	logger.InfoContext(ctx, "building solver",
		slog.String("source_dir", cfg.Dir),
		slog.String("target", cfg.Target),
	)

	args := []string{}
	if cfg.Target != "" {
		args = append(args, cfg.Target)
	}

	cmd := exec.CommandContext(ctx, "make", args...)
	cmd.Dir = cfg.Dir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("make in %s: %w", cfg.Dir, err)
	}

	if _, err := os.Stat(binPath); err != nil {
		return "", fmt.Errorf(
			"build solver: binary not found at %s", binPath,
		)
	}

	logger.InfoContext(ctx, "solver built",
		slog.String("binary", binPath),
	)

	return binPath, nil
}
