package patch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

func describeHunkStatuses(statuses []HunkStatus) string {
	if len(statuses) == 0 {
		return ""
	}
	var applied, failed []string
	for _, status := range statuses {
		if status.Status == HunkApplied {
			applied = append(applied, strconv.Itoa(status.Number))
			continue
		}
		failed = append(failed, strconv.Itoa(status.Number))
	}

	parts := make([]string, 0, 2)
	if len(applied) > 0 {
		parts = append(parts, fmt.Sprintf("Hunks applied: %s.", strings.Join(applied, ", ")))
	}
	if len(failed) > 0 {
		parts = append(parts, fmt.Sprintf("No match for hunks: %s.", strings.Join(failed, ", ")))
	}
	return strings.Join(parts, "\n")
}

// FormatError renders an error from this package into a message suitable
// for end users. Hunk mismatches include the offending hunks and, when
// showContent is set, the full original file.
func FormatError(err error, showContent bool) string {
	if err == nil {
		return "Unknown error occurred."
	}
	var pe *Error
	if !errors.As(err, &pe) {
		return err.Error()
	}
	message := pe.Error()
	if pe.Code != CodeHunkNotFound {
		return message
	}

	relativePath := pe.RelativePath
	if relativePath == "" {
		relativePath = "unknown file"
	}
	displayPath := relativePath
	if !strings.HasPrefix(displayPath, "./") {
		displayPath = "./" + displayPath
	}

	parts := []string{message}
	if summary := describeHunkStatuses(pe.HunkStatuses); summary != "" {
		parts = append(parts, "", summary)
	}
	for _, failed := range pe.FailedHunks {
		header := fmt.Sprintf("Offending hunk %d:", failed.Number)
		if failed.NearLine > 0 {
			header = fmt.Sprintf("Offending hunk %d (closest candidate near line %d):", failed.Number, failed.NearLine)
		}
		parts = append(parts, "", header, strings.Join(failed.RawPatchLines, "\n"))
	}
	if showContent && pe.OriginalContent != "" {
		parts = append(parts, "", fmt.Sprintf("Full content of file: %s::::", displayPath), pe.OriginalContent)
	}
	return strings.Join(parts, "\n")
}
