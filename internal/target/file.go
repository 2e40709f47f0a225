package target

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/hotpatch/internal/plugin/hooks"
)

// File writes the text to a path. The previous file is replaced by rename,
// so readers see either the old or the new artifact.
type File struct {
	path string
}

// NewFile creates a file target writing to path.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("file target path is required")
	}
	return &File{path: path}, nil
}

func (f *File) Kind() string { return KindFile }

func (f *File) Materialize(_ context.Context, text string) (hooks.Environment, error) {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return nil, fmt.Errorf("create target directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return nil, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return nil, fmt.Errorf("replace %s: %w", f.path, err)
	}
	return &FileEnv{path: f.path, source: text}, nil
}

// FileEnv is a written artifact.
type FileEnv struct {
	path   string
	source string
}

func (e *FileEnv) Target() string { return KindFile }
func (e *FileEnv) Source() string { return e.source }

// Path returns where the artifact was written.
func (e *FileEnv) Path() string { return e.path }
