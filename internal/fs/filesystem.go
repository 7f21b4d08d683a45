package fs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"dvsmart-go/internal/dvs"
)

// OSFilesystem is the local-disk dvs.SourceFilesystem.
type OSFilesystem struct {
	ignore []string
}

var _ dvs.SourceFilesystem = (*OSFilesystem)(nil)

// NewOSFilesystem creates a source filesystem. ignorePatterns are combined
// with the defaults and with the .dvsignore file of each listed root.
func NewOSFilesystem(ignorePatterns []string) *OSFilesystem {
	return &OSFilesystem{ignore: ignorePatterns}
}

// List walks root and returns every regular file that is not ignored.
// Symlinks, devices, pipes and sockets are skipped.
func (f *OSFilesystem) List(ctx context.Context, root string) ([]dvs.FileEntry, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	fromFile, err := ParseIgnoreFile(filepath.Join(absRoot, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns := append(append(append([]string{}, defaultIgnorePatterns...), f.ignore...), fromFile...)
	matcher := NewIgnoreMatcher(patterns)

	var entries []dvs.FileEntry
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if matcher.MatchDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || matcher.Match(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		entries = append(entries, dvs.FileEntry{
			Dir:     filepath.Dir(p),
			Name:    d.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return entries, nil
}

// Open opens a regular file for reading.
func (f *OSFilesystem) Open(_ context.Context, fullPath string) (io.ReadCloser, error) {
	info, err := os.Lstat(fullPath)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", fullPath)
	}
	return os.Open(fullPath)
}

// Delete removes a file. The returned *PathError wraps fs.ErrNotExist when
// the file is already gone.
func (f *OSFilesystem) Delete(_ context.Context, fullPath string) error {
	return os.Remove(fullPath)
}
