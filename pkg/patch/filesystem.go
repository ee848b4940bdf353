package patch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ApplyFilesystem applies a PatchSet to files under opts.WorkingDir. The
// returned error is reserved for setup failures and cancellation; per-file
// problems are recorded in the Report.
func ApplyFilesystem(ctx context.Context, set PatchSet, opts FilesystemOptions) (*Report, error) {
	ws, err := newFilesystemWorkspace(opts)
	if err != nil {
		return nil, err
	}
	return apply(ctx, set, ws, opts.Options)
}

// ApplyFilesystemPatch parses a raw diff and applies it to the filesystem.
func ApplyFilesystemPatch(ctx context.Context, patchBody string, opts FilesystemOptions) (*Report, error) {
	set, err := Parse(patchBody)
	if err != nil {
		return nil, err
	}
	return ApplyFilesystem(ctx, set, opts)
}

type filesystemWorkspace struct {
	root string
}

func newFilesystemWorkspace(opts FilesystemOptions) (*filesystemWorkspace, error) {
	workingDir := strings.TrimSpace(opts.WorkingDir)
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		workingDir = wd
	}
	abs, err := filepath.Abs(workingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", workingDir, err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", workingDir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", workingDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", workingDir)
	}
	return &filesystemWorkspace{root: root}, nil
}

func (ws *filesystemWorkspace) Ensure(rel string, create bool) (*state, error) {
	abs, err := ws.resolvePath(rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	switch {
	case err == nil && info.IsDir():
		return nil, newError(ErrTargetNotFound, CodeTargetNotFound, rel,
			fmt.Sprintf("cannot patch directory %s", rel), nil)
	case err == nil:
		content, readErr := os.ReadFile(abs)
		if readErr != nil {
			return nil, newError(nil, CodeIO, rel, fmt.Sprintf("failed to read %s: %v", rel, readErr), readErr)
		}
		st := newState(abs, rel, string(content))
		st.originalMode = info.Mode()
		return st, nil
	case errors.Is(err, fs.ErrNotExist):
		if !create {
			return nil, newError(ErrTargetNotFound, CodeTargetNotFound, rel,
				fmt.Sprintf("failed to read %s: file does not exist", rel), err)
		}
		st := newState(abs, rel, "")
		st.isNew = true
		return st, nil
	default:
		return nil, newError(nil, CodeIO, rel, fmt.Sprintf("failed to stat %s: %v", rel, err), err)
	}
}

func (ws *filesystemWorkspace) Commit(st *state, status string) error {
	rel := st.relativePath
	if status == "D" {
		if err := os.Remove(st.path); err != nil {
			return newError(nil, CodeIO, rel, fmt.Sprintf("failed to delete %s: %v", rel, err), err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return newError(nil, CodeIO, rel, fmt.Sprintf("failed to create directory for %s: %v", rel, err), err)
	}

	perm := st.originalMode & fs.ModePerm
	if perm == 0 {
		perm = 0o644
	}
	if err := os.WriteFile(st.path, []byte(st.content()), perm); err != nil {
		return newError(nil, CodeIO, rel, fmt.Sprintf("failed to write %s: %v", rel, err), err)
	}

	special := st.originalMode & (fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky)
	if special != 0 {
		if err := os.Chmod(st.path, perm|special); err != nil {
			return newError(nil, CodeIO, rel, fmt.Sprintf("failed to restore permissions for %s: %v", rel, err), err)
		}
	}
	return nil
}

// resolvePath joins rel onto the root and verifies that the result, with any
// existing symlinks followed, is still inside the root.
func (ws *filesystemWorkspace) resolvePath(rel string) (string, error) {
	abs := filepath.Join(ws.root, filepath.FromSlash(rel))
	resolved, err := resolveExisting(abs)
	if err != nil {
		return "", newError(ErrPathResolution, CodePathResolution, rel,
			fmt.Sprintf("failed to resolve %s: %v", rel, err), err)
	}
	if !isPathWithinRoot(ws.root, resolved) {
		return "", newError(ErrPathTraversal, CodePathTraversal, rel,
			fmt.Sprintf("path %s resolves outside the target root", rel), nil)
	}
	return abs, nil
}

// resolveExisting follows symlinks along the longest existing prefix of path
// and re-attaches the missing tail.
func resolveExisting(path string) (string, error) {
	var tail []string
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path, nil
		}
		tail = append(tail, filepath.Base(current))
		current = parent
	}
}

func isPathWithinRoot(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
