package vault

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dvsmart-go/internal/dvs"
)

// FileSystemDestination writes reorganized files below a root directory.
// Destination paths map directly onto the directory structure:
//
//	<root>/
//	  <prefix>/a1/b2/c3/<fileName>
type FileSystemDestination struct {
	root string
}

// NewFileSystemDestination creates a destination rooted at the given path.
func NewFileSystemDestination(root string) (*FileSystemDestination, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination root: %w", err)
	}
	return &FileSystemDestination{root: root}, nil
}

// Root returns the directory files are written below.
func (d *FileSystemDestination) Root() string {
	return d.root
}

func (d *FileSystemDestination) resolve(p string) (string, error) {
	local := filepath.FromSlash(p)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("destination path escapes root: %q", p)
	}
	return filepath.Join(d.root, local), nil
}

// Write stores the content from r at path. An existing file at path is
// replaced, so a retried transfer overwrites a previous partial attempt.
func (d *FileSystemDestination) Write(ctx context.Context, path string, r io.Reader, size int64) error {
	destPath, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return writeFile(ctx, destPath, r, size)
}

// Open opens a previously written file.
func (d *FileSystemDestination) Open(_ context.Context, path string) (io.ReadCloser, error) {
	srcPath, err := d.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

// ValidateSetup verifies that the root is a writable directory.
func (d *FileSystemDestination) ValidateSetup(_ context.Context) error {
	info, err := os.Stat(d.root)
	if err != nil {
		return fmt.Errorf("destination root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("destination root is not a directory: %s", d.root)
	}

	f, err := os.CreateTemp(d.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("destination root not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// writeFile writes data from r to destPath using atomic write (temp file + rename).
// A negative expectedSize skips size verification.
func writeFile(ctx context.Context, destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if expectedSize >= 0 && written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ dvs.Destination = (*FileSystemDestination)(nil)
