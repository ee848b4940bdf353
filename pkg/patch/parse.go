package patch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const noNewlineMarker = `\ No newline at end of file`

var hunkHeaderPattern = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

// Parse converts a unified diff document into a PatchSet. Text outside file
// sections (commit messages, "diff --git" and "index" lines) is ignored.
func Parse(input string) (PatchSet, error) {
	p := &parser{lines: splitLines(input)}
	if err := p.run(); err != nil {
		return PatchSet{}, err
	}
	return p.set, nil
}

// ParseBytes is Parse for raw document bytes.
func ParseBytes(input []byte) (PatchSet, error) {
	return Parse(string(input))
}

type parser struct {
	lines   []string
	set     PatchSet
	current *FilePatch
	hunk    *Hunk
	oldLeft int
	newLeft int
}

func (p *parser) run() error {
	for i := 0; i < len(p.lines); i++ {
		line := p.lines[i]
		if p.hunk != nil {
			if p.consumeBody(i) {
				continue
			}
			if err := p.closeHunk(); err != nil {
				return err
			}
		}

		switch {
		case p.isFileHeader(i):
			if err := p.closeFile(); err != nil {
				return err
			}
			p.current = &FilePatch{
				Source: parseHeaderPath(line[4:]),
				Target: parseHeaderPath(p.lines[i+1][4:]),
			}
			i++
		case strings.HasPrefix(line, "@@"):
			if p.current == nil {
				return malformed(fmt.Sprintf("line %d: hunk header without a preceding file header", i+1))
			}
			hunk, err := parseHunkHeader(line)
			if err != nil {
				return malformed(fmt.Sprintf("line %d: %v", i+1, err))
			}
			p.hunk = &hunk
			p.oldLeft, p.newLeft = hunk.OldLength, hunk.NewLength
		}
	}

	if err := p.closeHunk(); err != nil {
		return err
	}
	if err := p.closeFile(); err != nil {
		return err
	}
	if len(p.set.Files) == 0 {
		return malformed("no file headers found")
	}
	return nil
}

// consumeBody appends line i to the open hunk and reports whether it belonged
// to the hunk body.
func (p *parser) consumeBody(i int) bool {
	line := p.lines[i]
	expecting := p.oldLeft > 0 || p.newLeft > 0

	if line == "" {
		if !expecting {
			return false
		}
		// Mailers strip the single space of blank context lines.
		p.appendLine(LineContext, "")
		return true
	}

	if !expecting && strings.IndexByte(" +-", line[0]) >= 0 && !p.bodyContinues(i) {
		return false
	}

	switch line[0] {
	case ' ':
		p.appendLine(LineContext, line[1:])
	case '+':
		p.appendLine(LineAdd, line[1:])
	case '-':
		if p.isFileHeader(i) && (!expecting || p.hunkFollows(i+2)) {
			return false
		}
		p.appendLine(LineRemove, line[1:])
	case '\\':
		if n := len(p.hunk.Lines); n > 0 {
			p.hunk.Lines[n-1].NoNewline = true
		}
	default:
		return false
	}
	return true
}

// bodyContinues reports whether line i starts a run of body lines that ends
// at the next hunk, the next file, or the end of the document. Hunks that
// declare too few lines keep such runs; trailers like the "-- " signature of
// git format-patch do not qualify.
func (p *parser) bodyContinues(i int) bool {
	if p.lines[i] == "-- " {
		return false
	}
	for j := i; j < len(p.lines); j++ {
		line := p.lines[j]
		switch {
		case j > i && (p.hunkFollows(j) || p.isFileHeader(j)):
			return true
		case strings.HasPrefix(line, "diff "), strings.HasPrefix(line, "Index: "):
			return true
		case line == "":
			return p.onlyBlankFrom(j)
		case strings.ContainsRune(" +-\\", rune(line[0])):
		default:
			return false
		}
	}
	return true
}

func (p *parser) onlyBlankFrom(i int) bool {
	for _, line := range p.lines[i:] {
		if line != "" {
			return false
		}
	}
	return true
}

func (p *parser) appendLine(kind LineKind, text string) {
	p.hunk.Lines = append(p.hunk.Lines, DiffLine{Kind: kind, Text: text})
	switch kind {
	case LineContext:
		p.oldLeft--
		p.newLeft--
	case LineRemove:
		p.oldLeft--
	case LineAdd:
		p.newLeft--
	}
}

func (p *parser) isFileHeader(i int) bool {
	return strings.HasPrefix(p.lines[i], "--- ") &&
		i+1 < len(p.lines) && strings.HasPrefix(p.lines[i+1], "+++ ")
}

func (p *parser) hunkFollows(i int) bool {
	return i < len(p.lines) && strings.HasPrefix(p.lines[i], "@@")
}

func (p *parser) closeHunk() error {
	if p.hunk == nil {
		return nil
	}
	hunk := *p.hunk
	p.hunk = nil
	if len(hunk.Lines) == 0 {
		return malformed(fmt.Sprintf("empty hunk %q in %s", hunk.Header(), p.current.Path()))
	}
	p.current.Hunks = append(p.current.Hunks, hunk)
	return nil
}

func (p *parser) closeFile() error {
	if p.current == nil {
		return nil
	}
	file := *p.current
	p.current = nil
	if len(file.Hunks) == 0 {
		return malformed(fmt.Sprintf("no hunks for %s", headerDisplay(file)))
	}
	p.set.Files = append(p.set.Files, file)
	return nil
}

func parseHunkHeader(line string) (Hunk, error) {
	m := hunkHeaderPattern.FindStringSubmatch(line)
	if m == nil {
		return Hunk{}, fmt.Errorf("invalid hunk header %q", line)
	}
	var (
		h   Hunk
		err error
	)
	if h.OldStart, err = strconv.Atoi(m[1]); err != nil {
		return Hunk{}, fmt.Errorf("invalid hunk header %q: %w", line, err)
	}
	if h.OldLength, err = parseLength(m[2]); err != nil {
		return Hunk{}, fmt.Errorf("invalid hunk header %q: %w", line, err)
	}
	if h.NewStart, err = strconv.Atoi(m[3]); err != nil {
		return Hunk{}, fmt.Errorf("invalid hunk header %q: %w", line, err)
	}
	if h.NewLength, err = parseLength(m[4]); err != nil {
		return Hunk{}, fmt.Errorf("invalid hunk header %q: %w", line, err)
	}
	h.Section = strings.TrimSpace(m[5])
	return h, nil
}

func parseLength(raw string) (int, error) {
	if raw == "" {
		return 1, nil
	}
	return strconv.Atoi(raw)
}

// parseHeaderPath extracts the path from a "---"/"+++" header remainder.
// Timestamps after a tab are discarded and /dev/null yields "".
func parseHeaderPath(raw string) string {
	if i := strings.IndexByte(raw, '\t'); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.TrimRight(raw, " ")
	if strings.HasPrefix(raw, `"`) {
		if unquoted, err := strconv.Unquote(raw); err == nil {
			raw = unquoted
		}
	}
	if raw == "/dev/null" || strings.EqualFold(raw, "nul") {
		return ""
	}
	return raw
}

func headerDisplay(f FilePatch) string {
	if p := f.Path(); p != "" {
		return p
	}
	return "/dev/null"
}

func splitLines(input string) []string {
	lines := strings.Split(input, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
