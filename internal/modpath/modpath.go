// Package modpath maps Go module and package names to directories on disk.
package modpath

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/mod/module"

	"github.com/asynkron/patchurl/internal/logging"
)

// ErrNotFound is returned when a name cannot be mapped to a directory.
var ErrNotFound = errors.New("module not found")

// Runner executes a command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ShellRunner implements Runner with os/exec.
type ShellRunner struct {
	// Dir is the working directory for commands; empty means the current one.
	Dir string
}

// Run executes the command, folding stderr into the returned error.
func (r ShellRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// Resolver locates the directory to patch for a CLI "module" argument.
type Resolver struct {
	runner   Runner
	goBin    string
	modCache string
	logger   *slog.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(res *Resolver) { res.runner = r }
}

// WithModCache pins the module cache directory instead of asking the go tool.
func WithModCache(dir string) Option {
	return func(res *Resolver) { res.modCache = dir }
}

// WithLogger attaches a logger for debug traces.
func WithLogger(l *slog.Logger) Option {
	return func(res *Resolver) { res.logger = l }
}

// NewResolver creates a Resolver that shells out to the go tool.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		runner:   ShellRunner{},
		goBin:    "go",
		modCache: os.Getenv("GOMODCACHE"),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps name to an absolute directory. In order it accepts an
// existing directory, a "module@version" found in the module cache, an
// importable package path, and finally a module path known to the current
// build.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrNotFound)
	}

	if info, err := os.Stat(name); err == nil && info.IsDir() {
		abs, err := filepath.Abs(name)
		if err != nil {
			return "", fmt.Errorf("failed to resolve %s: %w", name, err)
		}
		return abs, nil
	}

	if path, version, ok := strings.Cut(name, "@"); ok {
		return r.fromModCache(ctx, path, version)
	}

	out, err := r.runner.Run(ctx, r.goBin, "list", "-f", "{{.Dir}}", name)
	if dir := firstLine(out); err == nil && dir != "" {
		r.logger.DebugContext(ctx, "resolved package", slog.String("name", name), slog.String("dir", dir))
		return dir, nil
	}
	r.logger.DebugContext(ctx, "go list package lookup failed", slog.String("name", name), slog.Any("error", err))

	out, err = r.runner.Run(ctx, r.goBin, "list", "-m", "-f", "{{.Dir}}", name)
	if dir := firstLine(out); err == nil && dir != "" {
		r.logger.DebugContext(ctx, "resolved module", slog.String("name", name), slog.String("dir", dir))
		return dir, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNotFound, name, err)
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (r *Resolver) fromModCache(ctx context.Context, path, version string) (string, error) {
	escPath, err := module.EscapePath(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	escVersion, err := module.EscapeVersion(version)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	cache := r.modCache
	if cache == "" {
		out, err := r.runner.Run(ctx, r.goBin, "env", "GOMODCACHE")
		if err != nil {
			return "", fmt.Errorf("failed to locate module cache: %w", err)
		}
		cache = firstLine(out)
	}
	if cache == "" {
		return "", fmt.Errorf("%w: module cache unknown", ErrNotFound)
	}

	dir := filepath.Join(cache, filepath.FromSlash(escPath)+"@"+escVersion)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s@%s not in %s", ErrNotFound, path, version, cache)
	}
	return dir, nil
}

func firstLine(out []byte) string {
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line)
}
