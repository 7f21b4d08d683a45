package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"dvsmart-go/internal/dvs"
)

// MockFile is a file in the mock source filesystem.
type MockFile struct {
	Content []byte
	ModTime time.Time
}

// MockSourceFilesystem is an in-memory dvs.SourceFilesystem with fault
// injection. Safe for concurrent use.
type MockSourceFilesystem struct {
	mu    sync.Mutex
	files map[string]*MockFile

	// ListErr is returned by List when set.
	ListErr error
	// OpenErrs and DeleteErrs fail Open and Delete for specific paths.
	OpenErrs   map[string]error
	DeleteErrs map[string]error

	opens   int
	deletes []string
}

var _ dvs.SourceFilesystem = (*MockSourceFilesystem)(nil)

// NewMockSourceFilesystem creates an empty mock filesystem.
func NewMockSourceFilesystem() *MockSourceFilesystem {
	return &MockSourceFilesystem{
		files:      make(map[string]*MockFile),
		OpenErrs:   make(map[string]error),
		DeleteErrs: make(map[string]error),
	}
}

// AddFile adds or replaces a file at the given absolute path.
func (m *MockSourceFilesystem) AddFile(path string, content []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(path)] = &MockFile{Content: content, ModTime: modTime}
}

// Exists reports whether a file is present at path.
func (m *MockSourceFilesystem) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[filepath.Clean(path)]
	return ok
}

// Deleted returns the paths successfully deleted so far, in order.
func (m *MockSourceFilesystem) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletes...)
}

// Opens returns the number of successful Open calls.
func (m *MockSourceFilesystem) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

func (m *MockSourceFilesystem) List(ctx context.Context, root string) ([]dvs.FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	root = filepath.Clean(root)
	var entries []dvs.FileEntry
	for p, f := range m.files {
		if p != root && !strings.HasPrefix(p, root+string(filepath.Separator)) && root != string(filepath.Separator) {
			continue
		}
		entries = append(entries, dvs.FileEntry{
			Dir:     filepath.Dir(p),
			Name:    filepath.Base(p),
			Size:    int64(len(f.Content)),
			ModTime: f.ModTime,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].FullPath() < entries[j].FullPath() })
	return entries, nil
}

func (m *MockSourceFilesystem) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err, ok := m.OpenErrs[path]; ok {
		return nil, err
	}
	f, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
	}
	m.opens++
	return io.NopCloser(bytes.NewReader(f.Content)), nil
}

func (m *MockSourceFilesystem) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err, ok := m.DeleteErrs[path]; ok {
		return err
	}
	if _, ok := m.files[path]; !ok {
		return fmt.Errorf("remove %s: %w", path, fs.ErrNotExist)
	}
	delete(m.files, path)
	m.deletes = append(m.deletes, path)
	return nil
}

// TimeoutError is a transient I/O error for fault injection.
type TimeoutError struct{}

func (TimeoutError) Error() string   { return "i/o timeout" }
func (TimeoutError) Timeout() bool   { return true }
func (TimeoutError) Temporary() bool { return true }
