// Package clock provides a monotonic time source as an injectable port.
// Real control code reads wall time through it; tests substitute a
// FakeClock so PID, SoftPWM, and Controller behavior is deterministic.
package clock

import "time"

// Source returns a monotonic timestamp in microseconds.
type Source interface {
	NowUs() int64
}

// Real is a Source backed by the process monotonic clock.
type Real struct {
	start time.Time
}

// NewReal creates a Real clock anchored at the current time.
func NewReal() *Real {
	return &Real{start: time.Now()}
}

// NowUs returns microseconds elapsed since the clock was created.
func (r *Real) NowUs() int64 {
	return int64(time.Since(r.start) / time.Microsecond)
}

// Fake is a Source with a manually advanced timestamp, for tests.
type Fake struct {
	nowUs int64
}

// NewFake creates a Fake clock starting at the given microsecond value.
func NewFake(startUs int64) *Fake {
	return &Fake{nowUs: startUs}
}

// NowUs returns the current fake timestamp.
func (f *Fake) NowUs() int64 {
	return f.nowUs
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.nowUs += int64(d / time.Microsecond)
}

// Set pins the fake clock to an absolute microsecond value.
func (f *Fake) Set(us int64) {
	f.nowUs = us
}
