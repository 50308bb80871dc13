package testutil

import (
	"sync"
	"time"
)

// FixedGenerator returns predetermined identifiers in order.
//
// Used for run IDs and report file suffixes so that file names and journal
// rows are predictable in tests.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	values []string
	idx    int
}

// NewFixedGenerator creates a generator that returns values in order.
//
// Example:
//
//	gen := NewFixedGenerator("aaa111", "bbb222")
//	gen.Generate() // "aaa111"
//	gen.Generate() // "bbb222"
//	gen.Generate() // panic: all values exhausted
func NewFixedGenerator(values ...string) *FixedGenerator {
	return &FixedGenerator{values: values}
}

// Generate returns the next predetermined value.
//
// Panics if all values have been consumed, which points at a test that
// produced more files or runs than it declared.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.values) {
		panic("FixedGenerator: all values exhausted")
	}
	v := g.values[g.idx]
	g.idx++
	return v
}

// FixedClock returns the same instant on every call.
type FixedClock struct {
	At time.Time
}

// NewFixedClock returns a clock frozen at the given wall time (local zone).
func NewFixedClock(year int, month time.Month, day, hour, min, sec int) *FixedClock {
	return &FixedClock{At: time.Date(year, month, day, hour, min, sec, 0, time.Local)}
}

// Now returns the frozen instant.
func (c *FixedClock) Now() time.Time {
	return c.At
}
