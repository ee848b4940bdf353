package patch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultMaxOffset is the fuzz window used when Options.MaxOffset is zero.
const DefaultMaxOffset = 250

// File states recorded in FileResult.State.
const (
	StateWritten   = "written"
	StateUnwritten = "unwritten"
)

// Options configure how a PatchSet is applied.
type Options struct {
	// MaxOffset bounds the outward search for a hunk, in lines. Zero selects
	// DefaultMaxOffset and a negative value disables the search.
	MaxOffset int
	// DryRun computes every result without touching the workspace.
	DryRun bool
	// Logger receives debug traces. Nil discards them.
	Logger *slog.Logger
}

func (o Options) maxOffset() int {
	switch {
	case o.MaxOffset == 0:
		return DefaultMaxOffset
	case o.MaxOffset < 0:
		return 0
	}
	return o.MaxOffset
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// FilesystemOptions augments Options with the root directory every patched
// path must stay inside.
type FilesystemOptions struct {
	Options
	WorkingDir string
}

// FileResult is the outcome for one FilePatch.
type FileResult struct {
	// Path is the normalized root-relative path, or the raw header path when
	// it could not be resolved.
	Path string `json:"path"`
	// Status is "A", "M" or "D" once the file is written.
	Status string       `json:"status,omitempty"`
	State  string       `json:"state"`
	Hunks  []HunkStatus `json:"hunks,omitempty"`
	Err    error        `json:"-"`
}

// OK reports whether every hunk of the file applied.
func (r FileResult) OK() bool {
	return r.Err == nil
}

// Report aggregates per-file outcomes in PatchSet order.
type Report struct {
	Files  []FileResult `json:"files"`
	DryRun bool         `json:"dryRun,omitempty"`
}

// OK is the logical AND of every file outcome.
func (r *Report) OK() bool {
	if r == nil {
		return false
	}
	for _, f := range r.Files {
		if !f.OK() {
			return false
		}
	}
	return true
}

// Err joins the per-file errors, or returns nil when every file applied.
func (r *Report) Err() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, f := range r.Files {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errors.Join(errs...)
}

type workspace interface {
	// Ensure loads the file at a normalized root-relative path.
	Ensure(rel string, create bool) (*state, error)
	// Commit persists the state; status "D" removes the file.
	Commit(st *state, status string) error
}

type fileLine struct {
	text string
	eol  string
}

type state struct {
	path            string
	relativePath    string
	lines           []fileLine
	eol             string
	originalContent string
	originalMode    fs.FileMode
	isNew           bool
	cursor          int
	delta           int
	hunkStatuses    []HunkStatus
	failedHunks     []FailedHunk
}

func newState(path, rel, content string) *state {
	lines, eol := splitContent(content)
	return &state{
		path:            path,
		relativePath:    rel,
		lines:           lines,
		eol:             eol,
		originalContent: content,
	}
}

// splitContent breaks content into lines that remember their own terminator
// and reports the terminator used for inserted lines.
func splitContent(content string) ([]fileLine, string) {
	eol := ""
	var lines []fileLine
	for content != "" {
		i := strings.IndexByte(content, '\n')
		if i < 0 {
			lines = append(lines, fileLine{text: content})
			break
		}
		line := fileLine{text: content[:i], eol: "\n"}
		if strings.HasSuffix(line.text, "\r") {
			line.text = line.text[:len(line.text)-1]
			line.eol = "\r\n"
		}
		if eol == "" {
			eol = line.eol
		}
		lines = append(lines, line)
		content = content[i+1:]
	}
	if eol == "" {
		eol = "\n"
	}
	return lines, eol
}

func (st *state) content() string {
	var b strings.Builder
	for i, line := range st.lines {
		b.WriteString(line.text)
		eol := line.eol
		if eol == "" && i < len(st.lines)-1 {
			eol = st.eol
		}
		b.WriteString(eol)
	}
	return b.String()
}

func apply(ctx context.Context, set PatchSet, ws workspace, opts Options) (*Report, error) {
	if ws == nil {
		return nil, errors.New("nil workspace")
	}
	report := &Report{DryRun: opts.DryRun}
	for _, fp := range set.Files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Files = append(report.Files, applyFile(ctx, fp, ws, opts))
	}
	return report, nil
}

func applyFile(ctx context.Context, fp FilePatch, ws workspace, opts Options) FileResult {
	logger := opts.logger()
	result := FileResult{Path: fp.Path(), State: StateUnwritten}

	rel, err := resolvePatchPath(fp)
	if err != nil {
		result.Err = err
		return result
	}
	result.Path = rel

	st, err := ws.Ensure(rel, fp.IsCreation())
	if err != nil {
		result.Err = err
		return result
	}
	if fp.IsCreation() && !st.isNew && len(st.lines) > 0 {
		result.Err = newError(ErrHunkMismatch, CodeHunkNotFound, rel,
			fmt.Sprintf("cannot create %s: file already exists", rel), nil)
		return result
	}

	for index, hunk := range fp.Hunks {
		if err := ctx.Err(); err != nil {
			result.Err = err
			return result
		}
		applyHunk(st, hunk, index+1, opts.maxOffset(), logger)
	}
	result.Hunks = append([]HunkStatus(nil), st.hunkStatuses...)

	if len(st.failedHunks) == len(fp.Hunks) {
		result.Err = hunkError(st, len(fp.Hunks))
		return result
	}

	status := "M"
	switch {
	case st.isNew:
		status = "A"
	case fp.IsDeletion() && len(st.lines) == 0 && len(st.failedHunks) == 0:
		status = "D"
	}
	if !opts.DryRun {
		if err := ws.Commit(st, status); err != nil {
			result.Err = err
			return result
		}
	}
	logger.Debug("patched file", slog.String("path", rel), slog.String("status", status), slog.Bool("dry_run", opts.DryRun))
	result.Status = status
	result.State = StateWritten
	if len(st.failedHunks) > 0 {
		result.Err = hunkError(st, len(fp.Hunks))
	}
	return result
}

// resolvePatchPath turns the header path of a FilePatch into a normalized
// root-relative path, rejecting anything that would leave the root.
func resolvePatchPath(fp FilePatch) (string, error) {
	raw := fp.Path()
	if raw == "" {
		return "", newError(ErrPathResolution, CodePathResolution, "", "file patch has no usable path", nil)
	}
	if IsAbs(raw) {
		return "", newError(ErrPathTraversal, CodePathTraversal, raw,
			fmt.Sprintf("refusing absolute path %s", raw), nil)
	}
	rel := Normalize(raw)
	if rel == "" {
		return "", newError(ErrTargetNotFound, CodeTargetNotFound, raw,
			fmt.Sprintf("path %q normalizes to nothing", raw), ErrPathResolution)
	}
	if escapesRoot(rel) {
		return "", newError(ErrPathTraversal, CodePathTraversal, raw,
			fmt.Sprintf("path %s resolves outside the target root", raw), nil)
	}
	return rel, nil
}

func applyHunk(st *state, hunk Hunk, number, maxOffset int, logger *slog.Logger) {
	before := hunk.Before()
	expected := hunk.OldStart - 1
	if hunk.OldLength == 0 {
		expected = hunk.OldStart
	}
	expected += st.delta

	index, ok := locate(st.lines, before, expected, st.cursor, maxOffset)
	if !ok {
		near := nearestCandidate(st.lines, before, expected)
		st.hunkStatuses = append(st.hunkStatuses, HunkStatus{Number: number, Status: HunkNoMatch})
		st.failedHunks = append(st.failedHunks, FailedHunk{
			Number:        number,
			RawPatchLines: hunk.RawLines(),
			NearLine:      near,
		})
		logger.Debug("hunk did not match", slog.String("path", st.relativePath), slog.Int("hunk", number), slog.Int("expected_line", expected+1))
		return
	}

	replacement := make([]fileLine, 0, len(hunk.Lines))
	pos := index
	for _, line := range hunk.Lines {
		switch line.Kind {
		case LineContext:
			replacement = append(replacement, st.lines[pos])
			pos++
		case LineRemove:
			pos++
		case LineAdd:
			added := fileLine{text: line.Text, eol: st.eol}
			if line.NoNewline {
				added.eol = ""
			}
			replacement = append(replacement, added)
		}
	}

	st.lines = splice(st.lines, index, len(before), replacement)
	st.delta += len(replacement) - len(before)
	st.cursor = index + len(replacement)
	st.hunkStatuses = append(st.hunkStatuses, HunkStatus{
		Number: number,
		Status: HunkApplied,
		Line:   index + 1,
		Offset: index - expected,
	})
	if index != expected {
		logger.Debug("hunk applied with offset", slog.String("path", st.relativePath), slog.Int("hunk", number), slog.Int("offset", index-expected))
	}
}

// locate finds the start of before in lines. The expected position is tried
// first, then positions at growing distance, earlier before later, never
// earlier than lower. The window is measured from expected even when it lies
// outside the file.
func locate(lines []fileLine, before []string, expected, lower, maxOffset int) (int, bool) {
	if lower < 0 {
		lower = 0
	}
	upper := len(lines) - len(before)
	if upper < lower {
		return 0, false
	}
	if len(before) == 0 {
		return min(max(expected, lower), upper), true
	}

	for d := 0; d <= maxOffset; d++ {
		lo, hi := expected-d, expected+d
		if lo < lower && hi > upper {
			break
		}
		if lo >= lower && lo <= upper && matchesAt(lines, before, lo) {
			return lo, true
		}
		if d > 0 && hi >= lower && hi <= upper && matchesAt(lines, before, hi) {
			return hi, true
		}
	}
	return 0, false
}

func matchesAt(lines []fileLine, before []string, at int) bool {
	for i, want := range before {
		if lines[at+i].text != want {
			return false
		}
	}
	return true
}

func splice(target []fileLine, index, deleteCount int, replacement []fileLine) []fileLine {
	result := make([]fileLine, 0, len(target)-deleteCount+len(replacement))
	result = append(result, target[:index]...)
	result = append(result, replacement...)
	result = append(result, target[index+deleteCount:]...)
	return result
}

// nearestCandidate returns a 1-based line hint for the block closest to
// before, or zero when nothing looks similar.
func nearestCandidate(lines []fileLine, before []string, expected int) int {
	pattern := ""
	for _, line := range before {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			pattern = trimmed
			break
		}
	}
	if pattern == "" || len(lines) == 0 {
		return 0
	}

	matcher := diffmatchpatch.New()
	pattern = truncateBytes(pattern, matcher.MatchMaxBits)

	var text strings.Builder
	loc := 0
	for i, line := range lines {
		if i == expected {
			loc = text.Len()
		}
		text.WriteString(line.text)
		text.WriteByte('\n')
	}
	haystack := text.String()

	idx := matcher.MatchMain(haystack, pattern, loc)
	if idx < 0 || idx > len(haystack) {
		return 0
	}
	return strings.Count(haystack[:idx], "\n") + 1
}

func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func hunkError(st *state, total int) *Error {
	failed := len(st.failedHunks)
	err := newError(ErrHunkMismatch, CodeHunkNotFound, st.relativePath,
		fmt.Sprintf("%d of %d hunks failed to apply to %s", failed, total, st.relativePath), nil)
	err.OriginalContent = st.originalContent
	err.HunkStatuses = append([]HunkStatus(nil), st.hunkStatuses...)
	err.FailedHunks = append([]FailedHunk(nil), st.failedHunks...)
	return err
}
