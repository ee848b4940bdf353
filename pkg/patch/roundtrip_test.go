package patch

import (
	"context"
	"fmt"
	"strings"
	"testing"

	gitdiff "github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/pmezard/go-difflib/difflib"
)

func splitKeepEnds(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

func unifiedDiff(t *testing.T, name, before, after string) string {
	t.Helper()
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitKeepEnds(before),
		B:        splitKeepEnds(after),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	})
	if err != nil {
		t.Fatalf("failed to build diff: %v", err)
	}
	return text
}

func numberedLines(n int, mutate func(i int) (string, bool)) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		line := fmt.Sprintf("line %d", i)
		if mutate != nil {
			replaced, keep := mutate(i)
			if !keep {
				continue
			}
			line = replaced
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func roundTripCases() map[string][2]string {
	base := numberedLines(40, nil)
	return map[string][2]string{
		"single replacement": {base, numberedLines(40, func(i int) (string, bool) {
			if i == 20 {
				return "changed 20", true
			}
			return fmt.Sprintf("line %d", i), true
		})},
		"deletions and insertions": {base, numberedLines(40, func(i int) (string, bool) {
			switch {
			case i == 2:
				return "", false
			case i == 30:
				return "line 30\ninserted a\ninserted b", true
			}
			return fmt.Sprintf("line %d", i), true
		})},
		"prepend": {base, "header\n" + base},
		"append":  {base, base + "footer 1\nfooter 2\n"},
		"hello": {
			"def hello_world():\n    return \"Hello, World!\"\n",
			"def hello_world():\n    return \"Hello, Patched World!\"\n",
		},
	}
}

func TestRoundTripGeneratedDiffs(t *testing.T) {
	t.Parallel()

	for name, pair := range roundTripCases() {
		name, pair := name, pair
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			text := unifiedDiff(t, "file.txt", pair[0], pair[1])
			set, err := Parse(text)
			if err != nil {
				t.Fatalf("Parse returned error: %v\n%s", err, text)
			}
			set = set.WithStrip(1)

			updated, report, err := ApplyToMemory(context.Background(), set, map[string]string{"file.txt": pair[0]}, Options{})
			if err != nil || !report.OK() {
				t.Fatalf("apply failed: %v %v\n%s", err, report.Err(), text)
			}
			if updated["file.txt"] != pair[1] {
				t.Fatalf("round trip mismatch:\n got %q\nwant %q", updated["file.txt"], pair[1])
			}

			restored, report, err := ApplyToMemory(context.Background(), set.Reverse(), updated, Options{})
			if err != nil || !report.OK() {
				t.Fatalf("reverse apply failed: %v %v", err, report.Err())
			}
			if restored["file.txt"] != pair[0] {
				t.Fatalf("reverse mismatch:\n got %q\nwant %q", restored["file.txt"], pair[0])
			}
		})
	}
}

func TestParseAgreesWithGitDiff(t *testing.T) {
	t.Parallel()

	for name, pair := range roundTripCases() {
		name, pair := name, pair
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			text := "diff --git a/file.txt b/file.txt\n" + unifiedDiff(t, "file.txt", pair[0], pair[1])

			set, err := Parse(text)
			if err != nil {
				t.Fatalf("Parse returned error: %v", err)
			}
			files, _, err := gitdiff.Parse(strings.NewReader(text))
			if err != nil {
				t.Fatalf("gitdiff.Parse returned error: %v", err)
			}
			if len(files) != len(set.Files) {
				t.Fatalf("file count mismatch: gitdiff %d, ours %d", len(files), len(set.Files))
			}

			fragments := files[0].TextFragments
			hunks := set.Files[0].Hunks
			if len(fragments) != len(hunks) {
				t.Fatalf("hunk count mismatch: gitdiff %d, ours %d", len(fragments), len(hunks))
			}
			for i, frag := range fragments {
				h := hunks[i]
				if int(frag.OldPosition) != h.OldStart || int(frag.OldLines) != h.OldLength ||
					int(frag.NewPosition) != h.NewStart || int(frag.NewLines) != h.NewLength {
					t.Fatalf("hunk %d range mismatch: gitdiff %s, ours %s", i+1, frag.Header(), h.Header())
				}
				if len(frag.Lines) != len(h.Lines) {
					t.Fatalf("hunk %d line count mismatch", i+1)
				}
				for j, line := range frag.Lines {
					want := map[gitdiff.LineOp]LineKind{
						gitdiff.OpContext: LineContext,
						gitdiff.OpDelete:  LineRemove,
						gitdiff.OpAdd:     LineAdd,
					}[line.Op]
					if h.Lines[j].Kind != want || h.Lines[j].Text != strings.TrimSuffix(line.Line, "\n") {
						t.Fatalf("hunk %d line %d mismatch: gitdiff %q, ours %+v", i+1, j, line.String(), h.Lines[j])
					}
				}
			}
		})
	}
}
