package patch

import (
	"context"
	"fmt"
)

// ApplyToMemory applies a PatchSet to an in-memory document store keyed by
// slash-separated relative paths. Keys are normalized and the map is copied
// before mutation; the updated snapshot is returned.
func ApplyToMemory(ctx context.Context, set PatchSet, files map[string]string, opts Options) (map[string]string, *Report, error) {
	snapshot := make(map[string]string, len(files))
	for k, v := range files {
		snapshot[Normalize(k)] = v
	}
	ws := &memoryWorkspace{files: snapshot}
	report, err := apply(ctx, set, ws, opts)
	if err != nil {
		return nil, report, err
	}
	return ws.files, report, nil
}

// ApplyMemoryPatch parses a raw diff and applies it to an in-memory map of files.
func ApplyMemoryPatch(ctx context.Context, patchBody string, files map[string]string, opts Options) (map[string]string, *Report, error) {
	set, err := Parse(patchBody)
	if err != nil {
		return nil, nil, err
	}
	return ApplyToMemory(ctx, set, files, opts)
}

type memoryWorkspace struct {
	files map[string]string
}

func (ws *memoryWorkspace) Ensure(rel string, create bool) (*state, error) {
	content, ok := ws.files[rel]
	if !ok {
		if !create {
			return nil, newError(ErrTargetNotFound, CodeTargetNotFound, rel,
				fmt.Sprintf("failed to read %s: file does not exist", rel), nil)
		}
		st := newState(rel, rel, "")
		st.isNew = true
		return st, nil
	}
	return newState(rel, rel, content), nil
}

func (ws *memoryWorkspace) Commit(st *state, status string) error {
	if status == "D" {
		delete(ws.files, st.path)
		return nil
	}
	ws.files[st.path] = st.content()
	return nil
}
