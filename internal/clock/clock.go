// Package clock abstracts the wall clock so cache expiry, alert cooldowns and
// prediction features can be tested against a controlled time.
package clock

import (
	"sync"
	"time"
)

// Clock is the time source injected into time-dependent components.
type Clock interface {
	Now() time.Time
	// Since is Now().Sub(t) on this clock.
	Since(t time.Time) time.Duration
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// MockClock is a manually driven clock, safe for concurrent use.
type MockClock struct {
	mu          sync.Mutex
	currentTime time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *MockClock) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

// Set jumps the clock to t.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
}

// Advance moves the clock by d. Negative durations move it backwards.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}
