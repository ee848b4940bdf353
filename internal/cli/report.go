package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/asynkron/patchurl/pkg/patch"
)

// printer renders apply results. Colors are only emitted on terminals.
type printer struct {
	w io.Writer

	ok      lipgloss.Style
	fail    lipgloss.Style
	muted   lipgloss.Style
	path    lipgloss.Style
	details lipgloss.Style
}

func newPrinter(w io.Writer, noColor bool) *printer {
	r := lipgloss.NewRenderer(w)
	if noColor || !isTerminal(w) {
		r.SetColorProfile(termenv.Ascii)
	}
	return &printer{
		w:     w,
		ok:    r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		fail:  r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		muted: r.NewStyle().Foreground(lipgloss.Color("245")),
		path:  r.NewStyle().Foreground(lipgloss.Color("252")),
		details: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("129")).
			PaddingLeft(1).
			PaddingRight(1),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *printer) success(msg string) {
	fmt.Fprintln(p.w, p.ok.Render(msg))
}

func (p *printer) failure(msg string) {
	fmt.Fprintln(p.w, p.fail.Render(msg))
}

// report prints one line per file and a detail block for each failure.
func (p *printer) report(r *patch.Report) {
	if r == nil {
		return
	}
	for _, f := range r.Files {
		status := f.Status
		if status == "" {
			status = "-"
		}
		mark := p.ok.Render("ok")
		if !f.OK() {
			mark = p.fail.Render("FAILED")
		}
		fmt.Fprintf(p.w, "%s %s %s %s\n", mark, status, p.path.Render(f.Path), p.muted.Render(describeHunks(f.Hunks)))
	}
	for _, f := range r.Files {
		if f.Err == nil {
			continue
		}
		fmt.Fprintln(p.w, p.details.Render(patch.FormatError(f.Err, false)))
	}
}

func describeHunks(hunks []patch.HunkStatus) string {
	if len(hunks) == 0 {
		return ""
	}
	parts := make([]string, 0, len(hunks))
	for _, h := range hunks {
		switch {
		case h.Status != patch.HunkApplied:
			parts = append(parts, "#"+strconv.Itoa(h.Number)+" no match")
		case h.Offset != 0:
			parts = append(parts, fmt.Sprintf("#%d at %d (offset %+d)", h.Number, h.Line, h.Offset))
		default:
			parts = append(parts, fmt.Sprintf("#%d at %d", h.Number, h.Line))
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
