package patch

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestApplyToMemoryUpdatesDocument(t *testing.T) {
	t.Parallel()

	body := strings.Join([]string{
		"--- notes.txt",
		"+++ notes.txt",
		"@@ -1,2 +1,2 @@",
		"-alpha",
		"+gamma",
		" beta",
	}, "\n")

	initial := map[string]string{"notes.txt": "alpha\nbeta\n"}
	updated, report, err := ApplyMemoryPatch(context.Background(), body, initial, Options{})
	if err != nil {
		t.Fatalf("ApplyMemoryPatch returned error: %v", err)
	}
	if got, want := len(report.Files), 1; got != want {
		t.Fatalf("unexpected result count: got %d want %d", got, want)
	}
	if report.Files[0].Status != "M" || report.Files[0].Path != "notes.txt" {
		t.Fatalf("unexpected result entry: %+v", report.Files[0])
	}
	if got, want := updated["notes.txt"], "gamma\nbeta\n"; got != want {
		t.Fatalf("updated document mismatch: got %q want %q", got, want)
	}
	if got, want := initial["notes.txt"], "alpha\nbeta\n"; got != want {
		t.Fatalf("initial map mutated: got %q want %q", got, want)
	}
}

func TestApplyToMemoryAddsDocument(t *testing.T) {
	t.Parallel()

	body := "--- /dev/null\n+++ new.txt\n@@ -0,0 +1,2 @@\n+hello\n+world\n\\ No newline at end of file\n"
	updated, report, err := ApplyMemoryPatch(context.Background(), body, map[string]string{}, Options{})
	if err != nil {
		t.Fatalf("ApplyMemoryPatch returned error: %v", err)
	}
	if got, want := updated["new.txt"], "hello\nworld"; got != want {
		t.Fatalf("new file content mismatch: got %q want %q", got, want)
	}
	if report.Files[0].Status != "A" {
		t.Fatalf("unexpected results: %+v", report.Files)
	}
}

func TestApplyToMemoryNormalizesKeys(t *testing.T) {
	t.Parallel()

	body := "--- dir/file.txt\n+++ dir/file.txt\n@@ -1 +1 @@\n-x\n+y\n"
	updated, report, err := ApplyMemoryPatch(context.Background(), body, map[string]string{`./dir\file.txt`: "x\n"}, Options{})
	if err != nil || !report.OK() {
		t.Fatalf("apply failed: %v %v", err, report.Err())
	}
	if got := updated["dir/file.txt"]; got != "y\n" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestApplyToMemoryPartialHunks(t *testing.T) {
	t.Parallel()

	body := strings.Join([]string{
		"--- f.txt",
		"+++ f.txt",
		"@@ -1 +1 @@",
		"-one",
		"+ONE",
		"@@ -3 +3 @@",
		"-missing",
		"+MISSING",
		"@@ -5 +5 @@",
		"-five",
		"+FIVE",
	}, "\n")
	updated, report, err := ApplyMemoryPatch(context.Background(), body, map[string]string{"f.txt": "one\ntwo\nthree\nfour\nfive\n"}, Options{})
	if err != nil {
		t.Fatalf("ApplyMemoryPatch returned error: %v", err)
	}
	if got := updated["f.txt"]; got != "ONE\ntwo\nthree\nfour\nFIVE\n" {
		t.Fatalf("unexpected content: %q", got)
	}
	result := report.Files[0]
	if result.State != StateWritten || result.OK() {
		t.Fatalf("partially applied file should be written but failed: %+v", result)
	}
	var pe *Error
	if !errors.As(result.Err, &pe) || len(pe.FailedHunks) != 1 || pe.FailedHunks[0].Number != 2 {
		t.Fatalf("expected hunk 2 to fail, got %#v", result.Err)
	}
	if got := []string{result.Hunks[0].Status, result.Hunks[1].Status, result.Hunks[2].Status}; strings.Join(got, ",") != "applied,no-match,applied" {
		t.Fatalf("unexpected hunk statuses: %v", got)
	}
}

func TestApplyToMemoryReverseRestoresOriginal(t *testing.T) {
	t.Parallel()

	set, err := Parse(helloWorldDiff)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	set = set.WithStrip(1)
	original := map[string]string{"example.py": "def hello_world():\n    return \"Hello, World!\"\n"}

	patched, report, err := ApplyToMemory(context.Background(), set, original, Options{})
	if err != nil || !report.OK() {
		t.Fatalf("forward apply failed: %v %v", err, report.Err())
	}
	restored, report, err := ApplyToMemory(context.Background(), set.Reverse(), patched, Options{})
	if err != nil || !report.OK() {
		t.Fatalf("reverse apply failed: %v %v", err, report.Err())
	}
	if restored["example.py"] != original["example.py"] {
		t.Fatalf("reverse did not restore original: %q", restored["example.py"])
	}
}

func TestApplyToMemoryNoNewlineTransitions(t *testing.T) {
	t.Parallel()

	addNewline := "--- f\n+++ f\n@@ -1 +1,2 @@\n-last\n\\ No newline at end of file\n+last\n+more\n"
	updated, report, err := ApplyMemoryPatch(context.Background(), addNewline, map[string]string{"f": "last"}, Options{})
	if err != nil || !report.OK() {
		t.Fatalf("apply failed: %v %v", err, report.Err())
	}
	if got := updated["f"]; got != "last\nmore\n" {
		t.Fatalf("unexpected content: %q", got)
	}

	dropNewline := "--- f\n+++ f\n@@ -1,2 +1,2 @@\n last\n-more\n+end\n\\ No newline at end of file\n"
	updated, report, err = ApplyMemoryPatch(context.Background(), dropNewline, updated, Options{})
	if err != nil || !report.OK() {
		t.Fatalf("apply failed: %v %v", err, report.Err())
	}
	if got := updated["f"]; got != "last\nend" {
		t.Fatalf("unexpected content: %q", got)
	}
}
