// Package storage gives read-only access to the raster files and the metadata text.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"allergen-map/internal/common"
)

// Source opens stored objects by slash-separated path.
// A missing object is reported with an error wrapping common.ErrNotFound.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// FS serves objects from an fs.FS, typically a data directory.
type FS struct {
	fsys fs.FS
	name string
}

// NewFS wraps fsys; name is only used in error messages
func NewFS(fsys fs.FS, name string) *FS {
	return &FS{fsys: fsys, name: name}
}

// NewDir serves objects below dir on the local filesystem
func NewDir(dir string) (*FS, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory %s is not a directory", dir)
	}
	return NewFS(os.DirFS(dir), dir), nil
}

// Open implements Source
func (s *FS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := strings.TrimPrefix(path.Clean("/"+name), "/")
	if !fs.ValidPath(clean) || clean == "." {
		return nil, fmt.Errorf("invalid object path %q: %w", name, common.ErrNotFound)
	}

	f, err := s.fsys.Open(clean)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s/%s: %w", s.name, clean, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open %s/%s: %w", s.name, clean, err)
	}
	if info, err := f.Stat(); err == nil && info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s/%s is a directory: %w", s.name, clean, common.ErrNotFound)
	}
	return f, nil
}

// Resource is a single named read-only object, such as the metadata text.
type Resource struct {
	Source Source
	Path   string
}

// Read returns the resource bytes verbatim
func (r Resource) Read(ctx context.Context) ([]byte, error) {
	if r.Source == nil {
		return nil, fmt.Errorf("resource %s has no source: %w", r.Path, common.ErrNotFound)
	}
	rc, err := r.Source.Open(ctx, r.Path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v: %w", r.Path, err, common.ErrCorruptData)
	}
	return data, nil
}
