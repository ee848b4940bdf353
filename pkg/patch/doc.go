// Package patch parses unified diffs and applies them to a directory tree.
//
// A diff document is parsed into an immutable PatchSet. Header paths can be
// rewritten with PatchSet.WithStrip before application, and the set is then
// applied either to the OS filesystem (ApplyFilesystem) or to an in-memory map
// of documents (ApplyToMemory). Application is best effort: every file and
// every hunk is attempted, and the returned Report records which ones
// succeeded.
//
// Hunks are located at their declared line numbers, shifted by the net line
// delta of the hunks already applied to the same file. When the context does
// not match there, the engine searches outward up to Options.MaxOffset lines
// in each direction and takes the nearest exact match.
package patch
