package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/asynkron/patchurl/internal/modpath"
	"github.com/asynkron/patchurl/internal/retry"
	"github.com/asynkron/patchurl/internal/source"
	"github.com/asynkron/patchurl/pkg/patch"
)

type applyFlags struct {
	strip     int
	maxOffset int
	dryRun    bool
	reverse   bool
	noColor   bool
}

func (a *app) applyCommand() *cobra.Command {
	var flags applyFlags
	cmd := &cobra.Command{
		Use:   "apply <patch> <module>",
		Short: "Apply a patch file or URL to a module or directory",
		Long: `Apply reads a unified diff from a local file or an http, https or ftp URL and
applies it to <module>.

<module> is either a directory, a module@version present in the module cache,
or a package or module path the go tool can resolve from the current directory.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runApply(cmd, args[0], args[1], flags)
		},
	}
	f := cmd.Flags()
	addStripFlag(f, &flags.strip)
	f.IntVar(&flags.maxOffset, "max-offset", patch.DefaultMaxOffset, "how many lines a hunk may drift from its declared position (-1 for exact)")
	f.BoolVar(&flags.dryRun, "dry-run", false, "report what would change without writing files")
	f.BoolVarP(&flags.reverse, "reverse", "R", false, "apply the patch in reverse")
	f.BoolVar(&flags.noColor, "no-color", false, "disable colored output")
	return cmd
}

func (a *app) runApply(cmd *cobra.Command, patchArg, moduleArg string, flags applyFlags) error {
	ctx := cmd.Context()
	logger := a.logger.With(slog.String("patch", patchArg), slog.String("module", moduleArg))

	strip, err := stripCount(cmd, flags.strip, a.cfg.Apply.Strip)
	if err != nil {
		return err
	}
	maxOffset := a.cfg.Apply.MaxOffset
	if cmd.Flags().Changed("max-offset") {
		maxOffset = flags.maxOffset
	}
	dryRun := a.cfg.Apply.DryRun
	if cmd.Flags().Changed("dry-run") {
		dryRun = flags.dryRun
	}

	out := newPrinter(a.stdout, flags.noColor)

	root, err := modpath.NewResolver(modpath.WithLogger(logger)).Resolve(ctx, moduleArg)
	if err != nil {
		logger.DebugContext(ctx, "module resolution failed", slog.Any("error", err))
		out.failure(fmt.Sprintf("Unable to locate module '%s'. Is it installed?", moduleArg))
		return errFailed
	}
	logger.InfoContext(ctx, "resolved module", slog.String("dir", root))

	data, err := a.readPatch(cmd, patchArg, logger)
	if err != nil {
		logger.DebugContext(ctx, "patch acquisition failed", slog.Any("error", err))
		switch {
		case errors.Is(err, source.ErrNetwork):
			out.failure(fmt.Sprintf("Failed to download patch from URL '%s'", patchArg))
		default:
			out.failure(fmt.Sprintf("Unable to locate patch file '%s'", patchArg))
		}
		return errFailed
	}

	set, err := patch.ParseBytes(data)
	if err != nil {
		out.failure(patch.FormatError(err, false))
		return errFailed
	}
	set = set.WithStrip(strip)
	if flags.reverse {
		set = set.Reverse()
	}

	started := time.Now()
	report, err := patch.ApplyFilesystem(ctx, set, patch.FilesystemOptions{
		Options: patch.Options{
			MaxOffset: maxOffset,
			DryRun:    dryRun,
			Logger:    logger,
		},
		WorkingDir: root,
	})
	if err != nil {
		out.failure(fmt.Sprintf("An unexpected error has occurred: %v", err))
		return errFailed
	}
	logger.InfoContext(ctx, "patch applied",
		slog.Int("files", len(report.Files)),
		slog.Bool("ok", report.OK()),
		slog.Bool("dry_run", dryRun),
		slog.Duration("elapsed", time.Since(started)),
	)

	out.report(report)
	if !report.OK() {
		out.failure("Unable to apply patch. Please verify the patch contents and the target module.")
		return errFailed
	}
	if dryRun {
		out.success(fmt.Sprintf("Patch applies cleanly to '%s' (dry run, nothing written).", moduleArg))
		return nil
	}
	out.success(fmt.Sprintf("Module '%s' patched successfully!", moduleArg))
	return nil
}

// readPatch loads the diff named by raw, dispatching on its location kind.
func (a *app) readPatch(cmd *cobra.Command, raw string, logger *slog.Logger) ([]byte, error) {
	loc := source.Classify(raw)
	logger.DebugContext(cmd.Context(), "reading patch", slog.String("kind", loc.Kind.String()))

	rc := retry.DefaultConfig()
	rc.MaxRetries = a.cfg.Fetch.Retries
	fetcher := source.NewFetcher(source.Options{
		Timeout:   a.cfg.Fetch.Timeout,
		MaxBytes:  a.cfg.Fetch.MaxBytes,
		UserAgent: a.cfg.Fetch.UserAgent,
		Retry:     rc,
		Logger:    logger,
	})
	return fetcher.Read(cmd.Context(), loc)
}
