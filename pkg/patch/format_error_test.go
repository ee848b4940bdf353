package patch

import (
	"errors"
	"strings"
	"testing"
)

func TestDescribeHunkStatuses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		statuses []HunkStatus
		want     string
	}{
		{
			name: "empty",
			want: "",
		},
		{
			name:     "only applied",
			statuses: []HunkStatus{{Number: 1, Status: HunkApplied}, {Number: 2, Status: HunkApplied}},
			want:     "Hunks applied: 1, 2.",
		},
		{
			name:     "mixed",
			statuses: []HunkStatus{{Number: 1, Status: HunkApplied}, {Number: 3, Status: HunkNoMatch}, {Number: 4, Status: HunkNoMatch}},
			want:     "Hunks applied: 1.\nNo match for hunks: 3, 4.",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := describeHunkStatuses(tc.statuses); got != tc.want {
				t.Fatalf("describeHunkStatuses() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFormatErrorForHunkNotFound(t *testing.T) {
	t.Parallel()

	err := &Error{
		Message:      "1 of 2 hunks failed to apply to src/app.go",
		Code:         CodeHunkNotFound,
		RelativePath: "src/app.go",
		HunkStatuses: []HunkStatus{{Number: 1, Status: HunkApplied}, {Number: 2, Status: HunkNoMatch}},
		FailedHunks: []FailedHunk{{
			Number:        2,
			RawPatchLines: []string{"@@ -4 +4 @@", "-before", "+after"},
			NearLine:      7,
		}},
		OriginalContent: "line1\nline2",
	}

	got := FormatError(err, true)
	if !containsAll(got, []string{
		"1 of 2 hunks failed to apply to src/app.go",
		"./src/app.go",
		"Hunks applied: 1.",
		"No match for hunks: 2.",
		"Offending hunk 2 (closest candidate near line 7):",
		"@@ -4 +4 @@",
		"line1\nline2",
	}) {
		t.Fatalf("unexpected formatted output:\n%s", got)
	}
	if strings.Contains(FormatError(err, false), "line1\nline2") {
		t.Fatalf("original content should be hidden when showContent is false")
	}
}

func TestFormatErrorForOtherErrors(t *testing.T) {
	t.Parallel()

	if got := FormatError(nil, false); got != "Unknown error occurred." {
		t.Fatalf("unexpected message for nil error: %q", got)
	}
	if got := FormatError(errors.New("custom failure"), false); got != "custom failure" {
		t.Fatalf("unexpected message: %q", got)
	}
	traversal := newError(ErrPathTraversal, CodePathTraversal, "../x", "path ../x resolves outside the target root", nil)
	if got := FormatError(traversal, true); got != traversal.Message {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestErrorMatchesSentinel(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk on fire")
	err := newError(ErrTargetNotFound, CodeTargetNotFound, "x", "", cause)
	if !errors.Is(err, ErrTargetNotFound) || !errors.Is(err, cause) {
		t.Fatalf("expected sentinel and cause to match")
	}
	if errors.Is(err, ErrHunkMismatch) {
		t.Fatalf("unexpected sentinel match")
	}
	if err.Error() != ErrTargetNotFound.Error() {
		t.Fatalf("empty message should fall back to sentinel text, got %q", err.Error())
	}
}

func containsAll(haystack string, needles []string) bool {
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
