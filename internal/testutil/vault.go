package testutil

import (
	"context"
	"io"
	"sync"

	"dvsmart-go/internal/dvs"
	"dvsmart-go/internal/vault"
)

// NewTestDestination creates a new in-memory destination for testing.
func NewTestDestination() *vault.MemoryDestination {
	return vault.NewMemoryDestination()
}

// FlakyDestination fails the first Failures writes with Err, then delegates
// to the wrapped destination.
type FlakyDestination struct {
	dvs.Destination

	mu       sync.Mutex
	Failures int
	Err      error
	writes   int
}

var _ dvs.Destination = (*FlakyDestination)(nil)

func (f *FlakyDestination) Write(ctx context.Context, path string, r io.Reader, size int64) error {
	f.mu.Lock()
	f.writes++
	fail := f.Failures > 0
	if fail {
		f.Failures--
	}
	f.mu.Unlock()

	if fail {
		// Drain like a real upload would before failing.
		io.Copy(io.Discard, r)
		return f.Err
	}
	return f.Destination.Write(ctx, path, r, size)
}

// Writes returns the number of Write calls, failed ones included.
func (f *FlakyDestination) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}
