package patch

import "errors"

// Sentinel errors identifying each failure class. Structured *Error values
// match them through errors.Is.
var (
	ErrMalformedDiff  = errors.New("malformed diff")
	ErrPathResolution = errors.New("path resolution failed")
	ErrTargetNotFound = errors.New("target file not found")
	ErrHunkMismatch   = errors.New("hunk does not match")
	ErrPathTraversal  = errors.New("path escapes target root")
)

// Error codes carried by *Error.
const (
	CodeMalformedDiff  = "MALFORMED_DIFF"
	CodePathResolution = "PATH_RESOLUTION"
	CodeTargetNotFound = "TARGET_NOT_FOUND"
	CodeHunkNotFound   = "HUNK_NOT_FOUND"
	CodePathTraversal  = "PATH_TRAVERSAL"
	CodeIO             = "IO"
)

// Hunk status values recorded in HunkStatus.Status.
const (
	HunkApplied = "applied"
	HunkNoMatch = "no-match"
)

// HunkStatus tracks how a hunk was applied.
type HunkStatus struct {
	Number int    `json:"number"`
	Status string `json:"status"`
	// Line is the 1-based line where the hunk landed, zero when it failed.
	Line int `json:"line,omitempty"`
	// Offset is the distance from the expected position.
	Offset int `json:"offset,omitempty"`
}

// FailedHunk stores the raw lines of a hunk that could not be applied.
type FailedHunk struct {
	Number        int      `json:"number"`
	RawPatchLines []string `json:"rawPatchLines"`
	// NearLine is a 1-based hint of where a similar block was seen, or zero.
	NearLine int `json:"nearLine,omitempty"`
}

// Error is a structured failure for a single file or for the whole document.
type Error struct {
	Message         string
	Code            string
	RelativePath    string
	OriginalContent string
	HunkStatuses    []HunkStatus
	FailedHunks     []FailedHunk

	kind  error
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.kind != nil {
		return e.kind.Error()
	}
	return "patch error"
}

// Unwrap exposes the failure class and the underlying cause.
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.kind != nil {
		out = append(out, e.kind)
	}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

func newError(kind error, code, rel, message string, cause error) *Error {
	return &Error{Message: message, Code: code, RelativePath: rel, kind: kind, cause: cause}
}

func malformed(message string) *Error {
	return newError(ErrMalformedDiff, CodeMalformedDiff, "", message, nil)
}
