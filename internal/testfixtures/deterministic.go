package testfixtures

import (
	"fmt"
	"sync"
	"time"
)

// Clock is a manually advanced time source shared by services under test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NowFunc returns Now for injection as a service's now dependency. A nil
// clock falls back to wall time.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Advance moves the clock forward so outbox rows and retries become due.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// IDGenerator yields sequential identifiers such as "appointment-1".
type IDGenerator struct {
	mu     sync.Mutex
	prefix string
	issued uint64
}

func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.issued++
	return fmt.Sprintf("%s-%d", g.prefix, g.issued)
}

// NextFunc returns Next for injection as a service's idGenerator dependency.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Issued reports how many identifiers have been handed out, which lets tests
// assert that a rejected request never reached ID generation.
func (g *IDGenerator) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(g.issued)
}
