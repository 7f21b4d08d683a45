package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"sync"

	"dvsmart-go/internal/dvs"
)

// MemoryDestination keeps reorganized files in memory, for tests and dry
// runs. It is safe for concurrent use.
type MemoryDestination struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryDestination creates an empty in-memory destination.
func NewMemoryDestination() *MemoryDestination {
	return &MemoryDestination{files: make(map[string][]byte)}
}

func (m *MemoryDestination) Write(ctx context.Context, path string, r io.Reader, size int64) error {
	data, err := io.ReadAll(&ctxReader{ctx: ctx, r: r})
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = data
	return nil
}

func (m *MemoryDestination) Open(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("opening %s: %w", path, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ValidateSetup always succeeds for the in-memory destination.
func (m *MemoryDestination) ValidateSetup(context.Context) error {
	return nil
}

// Get returns the content stored at path.
func (m *MemoryDestination) Get(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path]
	return data, ok
}

// Paths returns every stored path in sorted order.
func (m *MemoryDestination) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

var _ dvs.Destination = (*MemoryDestination)(nil)
