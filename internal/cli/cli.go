package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/asynkron/patchurl/internal/config"
	"github.com/asynkron/patchurl/internal/logging"
)

// Set at link time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// errFailed signals a failure that has already been reported to the user.
var errFailed = errors.New("failed")

// usageError marks bad invocations so Run can exit with status 2.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// app carries the per-invocation state shared by every command.
type app struct {
	stdout io.Writer
	stderr io.Writer
	flags  globalFlags

	cfg    *config.Config
	logger *slog.Logger
}

// Run executes the patchurl CLI using the provided arguments.
// It returns a POSIX-style exit code indicating whether execution succeeded.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	ctx = logging.WithTraceID(ctx, logging.NewTraceID())
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errFailed):
		return 1
	case isUsage(err):
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", root.Name())
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func isUsage(err error) bool {
	var ue usageError
	if errors.As(err, &ue) {
		return true
	}
	return strings.HasPrefix(err.Error(), "unknown command")
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "patchurl",
		Short: "Apply unified diffs to Go modules and directories",
		Long: `patchurl applies a unified diff, read from a local file or fetched over
http, https or ftp, to the source directory of a Go module or to any directory.

Every file in the diff is patched independently: hunks that still match are
applied even when others fail, and the exit status reports whether everything
applied.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", configFlagUsage())
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "log format (text, json)")

	root.AddCommand(a.applyCommand())
	root.AddCommand(a.inspectCommand())
	root.AddCommand(a.versionCommand())
	return root
}

func configFlagUsage() string {
	if path := config.DefaultPath(); path != "" {
		return "config file (default is " + path + ")"
	}
	return "config file (default is patchurl/config.yaml under the user config directory)"
}

// setup loads configuration and builds the logger before any command runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
	}
	if a.flags.logFormat != "" {
		cfg.Log.Format = a.flags.logFormat
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, a.stderr)
	if err != nil {
		return usageError{err: err}
	}
	a.cfg = cfg
	a.logger = logger
	logger.DebugContext(cmd.Context(), "configuration loaded",
		slog.String("command", cmd.Name()),
		slog.Int("strip", cfg.Apply.Strip),
		slog.Int("max_offset", cfg.Apply.MaxOffset),
		slog.Duration("fetch_timeout", cfg.Fetch.Timeout),
	)
	return nil
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  exactArgs(0),
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(a.stdout, "patchurl %s\n", version)
			fmt.Fprintf(a.stdout, "  commit: %s\n", commit)
			fmt.Fprintf(a.stdout, "  built:  %s\n", date)
		},
	}
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err: err}
		}
		return nil
	}
}

func addStripFlag(f *pflag.FlagSet, dst *int) {
	f.IntVarP(dst, "strip", "p", 0, "strip NUM leading components from file names")
}

// stripCount picks the flag value when given, otherwise the configured one.
func stripCount(cmd *cobra.Command, flagValue, configured int) (int, error) {
	n := configured
	if cmd.Flags().Changed("strip") {
		n = flagValue
	}
	if n < 0 {
		return 0, usageError{err: fmt.Errorf("invalid strip count %d", n)}
	}
	return n, nil
}
