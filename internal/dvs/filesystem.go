package dvs

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// FileEntry is one file as reported by a source listing.
type FileEntry struct {
	Dir     string // absolute directory containing the file
	Name    string
	Size    int64
	ModTime time.Time
}

// FullPath returns the path of the file on the source.
func (e FileEntry) FullPath() string {
	return filepath.Join(e.Dir, e.Name)
}

// SourceFilesystem is the filesystem files are discovered on and removed from
// during cleanup.
type SourceFilesystem interface {
	// List returns every regular, non-ignored file under root.
	List(ctx context.Context, root string) ([]FileEntry, error)

	// Open opens a source file for reading.
	Open(ctx context.Context, fullPath string) (io.ReadCloser, error)

	// Delete removes a source file. Deleting an absent file returns an error
	// wrapping fs.ErrNotExist.
	Delete(ctx context.Context, fullPath string) error
}

// Destination is where reorganized files are written. Paths are
// slash-separated keys relative to the destination root.
type Destination interface {
	// Write stores the content read from r at path. size is the number of
	// bytes expected from r, or -1 when unknown (e.g. encrypted content).
	Write(ctx context.Context, path string, r io.Reader, size int64) error

	// Open opens a previously written file.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// ValidateSetup verifies the destination is reachable and writable.
	ValidateSetup(ctx context.Context) error
}

// DestinationPath partitions files by the first three 2-character prefixes of
// their ID: <root>/a1/b2/c3/<fileName><suffix>. The result is always relative
// to the destination: a leading "/" on root is dropped.
func DestinationPath(root, id, fileName, suffix string) string {
	parts := []string{strings.TrimLeft(root, "/")}
	for i := 0; i+2 <= len(id) && i < 6; i += 2 {
		parts = append(parts, id[i:i+2])
	}
	parts = append(parts, fileName+suffix)
	return path.Join(parts...)
}
