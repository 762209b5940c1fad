// Package status provides a thread-safe status tracker for reflowd,
// read by the HTTP status server and the WebSocket live-push hub.
package status

import (
	"sync"
	"time"
)

// Config carries daemon configuration for display.
type Config struct {
	TickPeriodMs  int64
	Broker        string
	HTTPAddr      string
	WSPathEnabled bool
}

// Snapshot is a point-in-time view of daemon state. It is a value type
// — safe to use after the lock is released.
type Snapshot struct {
	Running       bool
	Alarming      bool
	StateLabel    string
	SetpointC     float64
	ProcessValueC float64
	PIDOutput     float64
	DoorAngleDeg  float64

	ProfileRunning  bool
	ProfileName     string
	ProfileStep     int
	ProfileTotal    int
	ProfileEndCause string

	TelemetryConnected bool
	StartTime          time.Time
	Now                time.Time
	Config             Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration { return s.Now.Sub(s.StartTime) }

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot

	subMu sync.Mutex
	subs  map[chan Snapshot]struct{}
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{StartTime: startTime, Config: cfg},
		subs: make(map[chan Snapshot]struct{}),
	}
}

// Subscribe registers a channel that receives a copy of the snapshot
// every time the tracker is updated. The returned cancel func
// unregisters and closes the channel; callers must call it to avoid
// leaking the subscription. bufSize sizes the channel so a slow
// WebSocket client can't block the publisher — a full channel drops
// the update rather than stalling.
func (t *Tracker) Subscribe(bufSize int) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, bufSize)
	t.subMu.Lock()
	t.subs[ch] = struct{}{}
	t.subMu.Unlock()

	cancel := func() {
		t.subMu.Lock()
		if _, ok := t.subs[ch]; ok {
			delete(t.subs, ch)
			close(ch)
		}
		t.subMu.Unlock()
	}
	return ch, cancel
}

func (t *Tracker) notifySubscribers() {
	snap := t.Snapshot()
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for ch := range t.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// UpdateController merges the live Controller fields into the tracked snapshot.
func (t *Tracker) UpdateController(running, alarming bool, stateLabel string, setpointC, pvC, pidOutput, doorAngleDeg float64) {
	t.mu.Lock()
	t.snap.Running = running
	t.snap.Alarming = alarming
	t.snap.StateLabel = stateLabel
	t.snap.SetpointC = setpointC
	t.snap.ProcessValueC = pvC
	t.snap.PIDOutput = pidOutput
	t.snap.DoorAngleDeg = doorAngleDeg
	t.mu.Unlock()
	t.notifySubscribers()
}

// UpdateProfile merges the live ProfileEngine fields into the tracked snapshot.
func (t *Tracker) UpdateProfile(running bool, name string, step, total int, endCause string) {
	t.mu.Lock()
	t.snap.ProfileRunning = running
	t.snap.ProfileName = name
	t.snap.ProfileStep = step
	t.snap.ProfileTotal = total
	t.snap.ProfileEndCause = endCause
	t.mu.Unlock()
	t.notifySubscribers()
}

// SetTelemetryConnected records the MQTT broker connection state.
func (t *Tracker) SetTelemetryConnected(connected bool) {
	t.mu.Lock()
	t.snap.TelemetryConnected = connected
	t.mu.Unlock()
	t.notifySubscribers()
}

// Snapshot returns a point-in-time copy of the daemon state, stamped
// with the current wall-clock time.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
