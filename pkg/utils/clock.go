// Package utils provides utility functions and types.
package utils

import (
	"sync"
	"time"
)

// Clock provides an interface for time operations, making code testable.
// NowMillis is the primitive the soft-reference timestamp clock is built on:
// it must be monotonically non-decreasing for the lifetime of the process.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NowMillis returns milliseconds on a monotonic scale. Successive calls
	// never decrease.
	NowMillis() int64

	// Since returns the duration since the given time.
	Since(t time.Time) time.Duration
}

// RealClock implements Clock using the standard time package. Millisecond
// readings are taken against a fixed process-start instant so they ride the
// runtime's monotonic clock rather than the adjustable wall clock.
type RealClock struct {
	start time.Time
}

// NewRealClock creates a new RealClock instance.
func NewRealClock() *RealClock {
	return &RealClock{start: time.Now()}
}

// Now returns the current time.
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// NowMillis returns monotonic milliseconds since the clock was created.
func (c *RealClock) NowMillis() int64 {
	return time.Since(c.start).Milliseconds()
}

// Since returns the duration since the given time.
func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// MockClock implements Clock for testing purposes. Unlike RealClock it can
// be stepped backward, which is exactly what clock-regression tests need.
type MockClock struct {
	mu          sync.Mutex
	currentTime time.Time
	millis      int64
}

// NewMockClock creates a new MockClock instance with the given start time.
func NewMockClock(startTime time.Time) *MockClock {
	return &MockClock{currentTime: startTime}
}

// Now returns the mock current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTime
}

// NowMillis returns the mock millisecond reading.
func (c *MockClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.millis
}

// Since returns the duration since the given time using mock time.
func (c *MockClock) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTime.Sub(t)
}

// Advance advances the mock clock by the given duration. Negative durations
// step it backward.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = c.currentTime.Add(d)
	c.millis += d.Milliseconds()
}

// SetMillis pins the millisecond reading to an absolute value.
func (c *MockClock) SetMillis(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.millis = ms
}
