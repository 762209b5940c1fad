// Package datalog implements the DataLogger: a fixed-capacity circular
// buffer of state snapshots, sampled at a configurable interval and
// pruned by a configurable retention window. Per spec.md §2 this
// component is out-of-scope beyond its interface contract — callers
// assemble Records from whichever snapshots they hold and hand them to
// Append; the buffer itself only owns capacity, retention, and
// interval bookkeeping.
package datalog

import (
	"sync"
	"time"

	"github.com/sweeney/reflowd/internal/apperr"
	"github.com/sweeney/reflowd/internal/clock"
)

const (
	MinIntervalMs = 250
	MaxIntervalMs = 10000
	DefaultIntervalMs = 1000

	MinRetention     = 1 * time.Minute
	MaxRetention     = 24 * time.Hour
	DefaultRetention = 30 * time.Minute

	// MaxStorageKB bounds total buffer size; recordBytes is a
	// conservative estimate of one Record's footprint used to derive
	// the fixed record capacity from that budget.
	MaxStorageKB = 500
	recordBytes  = 144
)

// maxRecords is the hard ceiling on buffered records, independent of
// the configured retention window (retention only controls how
// aggressively old records are pruned within that ceiling).
const maxRecords = (MaxStorageKB * 1024) / recordBytes

// Record is one sampled snapshot of live controller/profile state.
type Record struct {
	TimestampUs     int64
	SetpointC       float64
	ProcessValueC   float64
	PIDOutput       float64
	PTerm           float64
	ITerm           float64
	DTerm           float64
	ChannelReadings [8]float64
	RelayStates     uint8
	ServoAngleDeg   float64
	ChamberRunning  bool
}

// Logger is the circular record buffer. Safe for concurrent use: the
// data-log thread calls Append while request-handler threads call the
// setters/getters.
type Logger struct {
	src clock.Source
	mu  sync.Mutex

	intervalMs  int
	retentionMs int64
	enabled     bool

	buf   []Record
	head  int
	count int
}

// New constructs a Logger with the original firmware's defaults:
// logging on, 1 s sample interval, 30 min retention.
func New(src clock.Source) *Logger {
	return &Logger{
		src:         src,
		intervalMs:  DefaultIntervalMs,
		retentionMs: DefaultRetention.Milliseconds(),
		enabled:     true,
		buf:         make([]Record, maxRecords),
	}
}

// SetEnabled toggles logging without discarding buffered records.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
}

func (l *Logger) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

func (l *Logger) IntervalMs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.intervalMs
}

func (l *Logger) Retention() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Duration(l.retentionMs) * time.Millisecond
}

// SetIntervalMs validates and applies a new sample interval.
func (l *Logger) SetIntervalMs(ms int) error {
	if ms < MinIntervalMs || ms > MaxIntervalMs {
		return apperr.New(apperr.InvalidArgument, "log interval %dms out of range [%d,%d]", ms, MinIntervalMs, MaxIntervalMs)
	}
	l.mu.Lock()
	l.intervalMs = ms
	l.mu.Unlock()
	return nil
}

// SetRetention validates and applies a new retention window.
func (l *Logger) SetRetention(d time.Duration) error {
	if d < MinRetention || d > MaxRetention {
		return apperr.New(apperr.InvalidArgument, "retention %s out of range [%s,%s]", d, MinRetention, MaxRetention)
	}
	l.mu.Lock()
	l.retentionMs = d.Milliseconds()
	l.mu.Unlock()
	return nil
}

// Append stamps rec with the current time and inserts it, evicting the
// oldest record when the fixed capacity is exceeded or when the
// retention window has been exceeded.
func (l *Logger) Append(rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return
	}
	nowUs := l.src.NowUs()
	rec.TimestampUs = nowUs

	if l.count < len(l.buf) {
		l.buf[(l.head+l.count)%len(l.buf)] = rec
		l.count++
	} else {
		l.buf[l.head] = rec
		l.head = (l.head + 1) % len(l.buf)
	}

	l.pruneRetention(nowUs)
}

func (l *Logger) pruneRetention(nowUs int64) {
	for l.count > 0 {
		oldest := l.buf[l.head]
		ageMs := (nowUs - oldest.TimestampUs) / 1000
		if ageMs <= l.retentionMs {
			break
		}
		l.head = (l.head + 1) % len(l.buf)
		l.count--
	}
}

// Records returns a copy of all buffered records, oldest first.
func (l *Logger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.buf[(l.head+i)%len(l.buf)]
	}
	return out
}

// Len reports how many records are currently buffered.
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Capacity reports the fixed record ceiling derived from MaxStorageKB.
func (l *Logger) Capacity() int { return len(l.buf) }
