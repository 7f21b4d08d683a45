package testutil

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"dvsmart-go/internal/dvs"
)

// Epoch is the instant FixedClock starts at.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is a dvs.Clock under test control. Reorganize workers read it
// concurrently, so every method locks.
type StubClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

var _ dvs.Clock = (*StubClock)(nil)

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to Epoch.
func FixedClock() *StubClock {
	return NewStubClock(Epoch)
}

// Now returns the current stub time and then moves it on by the step, if any.
func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Advance moves the clock forward by d, e.g. past a stale-claim threshold.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set jumps the clock to t.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Step makes every later Now call advance the clock by d, so job and step
// durations come out non-zero.
func (c *StubClock) Step(d time.Duration) {
	c.mu.Lock()
	c.step = d
	c.mu.Unlock()
}

// StubIDGenerator hands out audit IDs "id-1", "id-2" and so on.
type StubIDGenerator struct {
	n atomic.Int64
}

var _ dvs.IDGenerator = (*StubIDGenerator)(nil)

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	return "id-" + strconv.FormatInt(g.n.Add(1), 10)
}
