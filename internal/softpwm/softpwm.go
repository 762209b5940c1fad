// Package softpwm implements a time-proportional software PWM
// scheduler: a one-shot re-arming timer that fires on_on/on_off
// callbacks at the edges of each period, with a duty cycle in [0,1].
package softpwm

import (
	"math"
	"sync"
	"time"
)

// State is the current phase of the scheduler.
type State int

const (
	Stopped State = iota
	On
	Off
)

// Callback is invoked at an edge. It must not block longer than
// period/4, per the concurrency contract in spec.md §4.2.
type Callback func()

// CancelFunc stops a previously scheduled timer. Calling it more than
// once, or after the timer has already fired, is a no-op.
type CancelFunc func()

// Timer abstracts the one-shot timer so tests can drive edges
// deterministically instead of sleeping real wall-clock time.
type Timer interface {
	Schedule(d time.Duration, f func()) CancelFunc
}

// RealTimer schedules edges with the standard library's time.AfterFunc.
type RealTimer struct{}

// Schedule arms a one-shot timer that calls f after d.
func (RealTimer) Schedule(d time.Duration, f func()) CancelFunc {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// PWM is a single software-PWM channel.
type PWM struct {
	mu sync.Mutex

	timer Timer

	periodMs uint32
	duty     float64

	onMs  uint32
	offMs uint32

	onOn  Callback
	onOff Callback

	state   State
	running bool
	cancel  CancelFunc
}

// New creates a PWM channel with the given period (ms, >0) and duty
// ([0,1], clamped). timer is optional; nil uses RealTimer{}.
func New(periodMs uint32, duty float64, onOn, onOff Callback, timer Timer) *PWM {
	if periodMs == 0 {
		periodMs = 1000
	}
	if timer == nil {
		timer = RealTimer{}
	}
	p := &PWM{
		timer:    timer,
		periodMs: periodMs,
		duty:     clampDuty(duty),
		onOn:     onOn,
		onOff:    onOff,
		state:    Stopped,
	}
	p.recomputeDurationsLocked()
	return p
}

func clampDuty(d float64) float64 {
	if d < 0 {
		return 0
	}
	if d > 1 {
		return 1
	}
	return d
}

// recomputeDurationsLocked must be called with mu held.
func (p *PWM) recomputeDurationsLocked() {
	on := uint32(math.Round(float64(p.periodMs) * p.duty))
	if on > p.periodMs {
		on = p.periodMs
	}
	off := p.periodMs - on
	p.onMs = on
	p.offMs = off
}

func floorMs(ms uint32) time.Duration {
	if ms == 0 {
		return time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

// Start begins the schedule in the Off state and arms the first edge.
// Idempotent: calling Start while already running has no effect.
func (p *PWM) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.state = Off
	p.armLocked(floorMs(p.offMs))
}

// Stop halts the schedule and cancels any pending edge. State becomes
// Stopped; no further callbacks fire until Start is called again.
func (p *PWM) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.state = Stopped
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// armLocked must be called with mu held. It schedules onTimer to fire
// after d.
func (p *PWM) armLocked(d time.Duration) {
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = p.timer.Schedule(d, p.onTimer)
}

// onTimer runs on the PWM timer thread. It flips state, invokes the
// edge callback outside the lock (so the callback may safely call back
// into SetDuty/ForceOn/etc.), then arms the next edge. Because the next
// edge is armed only after the callback returns, edges never overlap.
func (p *PWM) onTimer() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	var cb Callback
	var next time.Duration
	if p.state == Off {
		p.state = On
		cb = p.onOn
		next = floorMs(p.onMs)
	} else {
		p.state = Off
		cb = p.onOff
		next = floorMs(p.offMs)
	}
	p.mu.Unlock()

	if cb != nil {
		cb()
	}

	p.mu.Lock()
	if p.running {
		p.armLocked(next)
	}
	p.mu.Unlock()
}

// SetDuty updates the duty cycle ([0,1], clamped). Takes effect at the
// next edge.
func (p *PWM) SetDuty(duty float64) {
	p.mu.Lock()
	p.duty = clampDuty(duty)
	p.recomputeDurationsLocked()
	p.mu.Unlock()
}

// SetPeriod updates the period in milliseconds (must be >0; 0 is
// ignored). Takes effect at the next edge.
func (p *PWM) SetPeriod(periodMs uint32) {
	if periodMs == 0 {
		return
	}
	p.mu.Lock()
	p.periodMs = periodMs
	p.recomputeDurationsLocked()
	p.mu.Unlock()
}

// Duty returns the current duty cycle.
func (p *PWM) Duty() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty
}

// Period returns the current period in milliseconds.
func (p *PWM) Period() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.periodMs
}

// IsRunning reports whether Start has been called without a matching Stop.
func (p *PWM) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// State returns the current phase.
func (p *PWM) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ForceOn synchronously sets the On state, invokes on_on, cancels any
// pending edge, and — if running — reschedules the next edge from now.
func (p *PWM) ForceOn() {
	p.force(On, p.onOn)
}

// ForceOff synchronously sets the Off state, invokes on_off, cancels
// any pending edge, and — if running — reschedules the next edge from
// now.
func (p *PWM) ForceOff() {
	p.force(Off, p.onOff)
}

func (p *PWM) force(target State, cb Callback) {
	p.mu.Lock()
	p.state = target
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	running := p.running
	var next time.Duration
	if running {
		if target == On {
			next = floorMs(p.onMs)
		} else {
			next = floorMs(p.offMs)
		}
	}
	p.mu.Unlock()

	if cb != nil {
		cb()
	}

	if running {
		p.mu.Lock()
		if p.running {
			p.armLocked(next)
		}
		p.mu.Unlock()
	}
}
