package cli

import (
	"fmt"
	"log/slog"
	"strings"

	glam "github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/asynkron/patchurl/pkg/patch"
)

type inspectFlags struct {
	strip    int
	markdown bool
	width    int
}

func (a *app) inspectCommand() *cobra.Command {
	var flags inspectFlags
	cmd := &cobra.Command{
		Use:   "inspect <patch>",
		Short: "Show the files and hunks a patch touches",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInspect(cmd, args[0], flags)
		},
	}
	f := cmd.Flags()
	addStripFlag(f, &flags.strip)
	f.BoolVar(&flags.markdown, "markdown", false, "print raw markdown instead of rendering it")
	f.IntVar(&flags.width, "width", 100, "word wrap width for rendered output")
	return cmd
}

func (a *app) runInspect(cmd *cobra.Command, patchArg string, flags inspectFlags) error {
	ctx := cmd.Context()
	logger := a.logger.With(slog.String("patch", patchArg))

	strip, err := stripCount(cmd, flags.strip, a.cfg.Apply.Strip)
	if err != nil {
		return err
	}

	data, err := a.readPatch(cmd, patchArg, logger)
	if err != nil {
		return err
	}
	set, err := patch.ParseBytes(data)
	if err != nil {
		return err
	}
	md := summaryMarkdown(set.WithStrip(strip))
	logger.DebugContext(ctx, "patch parsed", slog.Int("files", len(set.Files)))

	if flags.markdown {
		fmt.Fprint(a.stdout, md)
		return nil
	}

	style := "dark"
	if !isTerminal(a.stdout) {
		style = "notty"
	}
	r, err := glam.NewTermRenderer(
		glam.WithStylePath(style),
		glam.WithWordWrap(flags.width),
	)
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	rendered, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}
	fmt.Fprint(a.stdout, rendered)
	return nil
}

// summaryMarkdown describes a PatchSet as a markdown document: a diffstat
// followed by every hunk in a fenced diff block.
func summaryMarkdown(set patch.PatchSet) string {
	var b strings.Builder
	stats := set.Stats()
	fmt.Fprintf(&b, "# Patch summary\n\n%s, %d insertion(s)(+), %d deletion(s)(-)\n\n",
		plural(len(set.Files), "file"), stats.Added, stats.Removed)

	for _, f := range set.Files {
		fs := f.Stats()
		fmt.Fprintf(&b, "## %s `%s`\n\n", fileStatus(f), displayPath(f))
		fmt.Fprintf(&b, "%s, +%d -%d\n\n", plural(len(f.Hunks), "hunk"), fs.Added, fs.Removed)
		b.WriteString("```diff\n")
		for _, h := range f.Hunks {
			for _, line := range h.RawLines() {
				b.WriteString(line)
				b.WriteByte('\n')
			}
		}
		b.WriteString("```\n\n")
	}
	return b.String()
}

func fileStatus(f patch.FilePatch) string {
	switch {
	case f.IsCreation():
		return "A"
	case f.IsDeletion():
		return "D"
	}
	return "M"
}

func displayPath(f patch.FilePatch) string {
	if p := f.Path(); p != "" {
		return p
	}
	return "/dev/null"
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
