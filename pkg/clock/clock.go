// Package clock provides a pluggable millisecond time source.
//
// Components that reason about time accept a Clock at construction
// instead of calling time.Now directly, so window-expiry behavior can be
// driven deterministically in tests with a Fake clock and by the wall
// clock in production.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time in milliseconds since the Unix epoch.
// The absolute epoch does not matter to callers; only ordering and
// differences do.
type Clock interface {
	Now() int64
}

// ============================================================================
// REAL CLOCK
// ============================================================================

// RealClock reads the wall clock.
type RealClock struct{}

// Real returns the wall-clock Clock.
func Real() *RealClock {
	return &RealClock{}
}

// Now returns the current wall-clock time in milliseconds.
func (RealClock) Now() int64 {
	return time.Now().UnixMilli()
}

// ============================================================================
// FAKE CLOCK
// ============================================================================

// FakeClock is a manually advanced Clock for tests. The zero value starts
// at time 0; use Fake or FakeAt to construct one. Safe for concurrent use.
type FakeClock struct {
	mu  sync.Mutex
	now int64
}

// Fake returns a FakeClock starting at time 0.
func Fake() *FakeClock {
	return &FakeClock{}
}

// FakeAt returns a FakeClock starting at the given millisecond timestamp.
func FakeAt(ms int64) *FakeClock {
	return &FakeClock{now: ms}
}

// Now returns the fake time.
func (c *FakeClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the fake time forward by deltaMs milliseconds.
func (c *FakeClock) Advance(deltaMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += deltaMs
}

// Set moves the fake time to an absolute millisecond timestamp. Moving
// time backwards is allowed but breaks the non-decreasing assumption
// downstream components rely on; tests should only do it deliberately.
func (c *FakeClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ms
}

// Compile-time interface checks
var (
	_ Clock = (*RealClock)(nil)
	_ Clock = (*FakeClock)(nil)
)
