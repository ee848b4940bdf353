package patch

import (
	"strconv"
	"strings"
)

// LineKind classifies a line inside a hunk body.
type LineKind int

const (
	// LineContext is a line present in both versions (" " prefix).
	LineContext LineKind = iota
	// LineAdd is a line only present in the new version ("+" prefix).
	LineAdd
	// LineRemove is a line only present in the old version ("-" prefix).
	LineRemove
)

// String returns the diff prefix used for the kind.
func (k LineKind) String() string {
	switch k {
	case LineAdd:
		return "+"
	case LineRemove:
		return "-"
	default:
		return " "
	}
}

// DiffLine is a single body line of a hunk. Text excludes the prefix and the
// line terminator. NoNewline is set when the line was followed by a
// "\ No newline at end of file" marker.
type DiffLine struct {
	Kind      LineKind
	Text      string
	NoNewline bool
}

// TrailingNewline reports whether the line ends with a terminator.
func (l DiffLine) TrailingNewline() bool {
	return !l.NoNewline
}

// Hunk is a contiguous block of changes. Starts are 1-based as declared in the
// "@@" header; lengths are informational and never enforced.
type Hunk struct {
	OldStart  int
	OldLength int
	NewStart  int
	NewLength int
	// Section is the optional text following the closing "@@".
	Section string
	Lines   []DiffLine
}

// Before returns the lines the hunk expects to find: context and removals.
func (h Hunk) Before() []string {
	out := make([]string, 0, len(h.Lines))
	for _, line := range h.Lines {
		if line.Kind != LineAdd {
			out = append(out, line.Text)
		}
	}
	return out
}

// After returns the lines the hunk leaves behind: context and additions.
func (h Hunk) After() []string {
	out := make([]string, 0, len(h.Lines))
	for _, line := range h.Lines {
		if line.Kind != LineRemove {
			out = append(out, line.Text)
		}
	}
	return out
}

// Header renders the "@@" line for the hunk.
func (h Hunk) Header() string {
	header := "@@ -" + formatRange(h.OldStart, h.OldLength) + " +" + formatRange(h.NewStart, h.NewLength) + " @@"
	if h.Section != "" {
		header += " " + h.Section
	}
	return header
}

// RawLines renders the hunk back to diff text, header included.
func (h Hunk) RawLines() []string {
	out := make([]string, 0, len(h.Lines)+1)
	out = append(out, h.Header())
	for _, line := range h.Lines {
		out = append(out, line.Kind.String()+line.Text)
		if line.NoNewline {
			out = append(out, noNewlineMarker)
		}
	}
	return out
}

// Stats counts added and removed lines.
func (h Hunk) Stats() Stats {
	var s Stats
	for _, line := range h.Lines {
		switch line.Kind {
		case LineAdd:
			s.Added++
		case LineRemove:
			s.Removed++
		}
	}
	return s
}

func (h Hunk) reverse() Hunk {
	lines := make([]DiffLine, len(h.Lines))
	for i, line := range h.Lines {
		switch line.Kind {
		case LineAdd:
			line.Kind = LineRemove
		case LineRemove:
			line.Kind = LineAdd
		}
		lines[i] = line
	}
	return Hunk{
		OldStart:  h.NewStart,
		OldLength: h.NewLength,
		NewStart:  h.OldStart,
		NewLength: h.OldLength,
		Section:   h.Section,
		Lines:     lines,
	}
}

// FilePatch groups the hunks targeting one file. An empty Source or Target
// means that side is absent (/dev/null).
type FilePatch struct {
	Source string
	Target string
	Hunks  []Hunk
}

// IsCreation reports whether the patch creates a file that did not exist.
func (f FilePatch) IsCreation() bool {
	return f.Source == "" && f.Target != ""
}

// IsDeletion reports whether the patch removes an existing file.
func (f FilePatch) IsDeletion() bool {
	return f.Target == "" && f.Source != ""
}

// Path is the header path used to locate the file: Target when present,
// otherwise Source.
func (f FilePatch) Path() string {
	if f.Target != "" {
		return f.Target
	}
	return f.Source
}

// Stats sums the line counts of every hunk.
func (f FilePatch) Stats() Stats {
	var s Stats
	for _, h := range f.Hunks {
		hs := h.Stats()
		s.Added += hs.Added
		s.Removed += hs.Removed
	}
	return s
}

// PatchSet is an ordered list of file patches in document order.
type PatchSet struct {
	Files []FilePatch
}

// WithStrip returns a copy of the set with Strip(path, n) applied to every
// present header path. The receiver is left untouched.
func (p PatchSet) WithStrip(n int) PatchSet {
	files := make([]FilePatch, len(p.Files))
	for i, f := range p.Files {
		if f.Source != "" {
			f.Source = Strip(f.Source, n)
		}
		if f.Target != "" {
			f.Target = Strip(f.Target, n)
		}
		files[i] = f
	}
	return PatchSet{Files: files}
}

// Reverse returns a set that undoes the receiver: sides are swapped and every
// addition becomes a removal and vice versa.
func (p PatchSet) Reverse() PatchSet {
	files := make([]FilePatch, len(p.Files))
	for i, f := range p.Files {
		hunks := make([]Hunk, len(f.Hunks))
		for j, h := range f.Hunks {
			hunks[j] = h.reverse()
		}
		files[i] = FilePatch{Source: f.Target, Target: f.Source, Hunks: hunks}
	}
	return PatchSet{Files: files}
}

// Stats sums the line counts of every file.
func (p PatchSet) Stats() Stats {
	var s Stats
	for _, f := range p.Files {
		fs := f.Stats()
		s.Added += fs.Added
		s.Removed += fs.Removed
	}
	return s
}

// Stats is a diffstat style summary.
type Stats struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

func formatRange(start, length int) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(start))
	if length != 1 {
		b.WriteString(",")
		b.WriteString(strconv.Itoa(length))
	}
	return b.String()
}
