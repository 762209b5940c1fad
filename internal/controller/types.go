// Package controller implements the Tick Supervisor: the periodic
// control loop that samples multi-channel sensors, filters and
// alarm-checks the process value, runs the bidirectional PID engine,
// and dispatches relay PWM duty and rate-limited servo-vent commands.
package controller

import (
	"sync"
	"time"

	"github.com/sweeney/reflowd/internal/hal"
	"github.com/sweeney/reflowd/internal/pid"
	"github.com/sweeney/reflowd/internal/softpwm"
)

// Bit-exact constants from spec.md §6.
const (
	TickPeriod   = 250 * time.Millisecond
	tickPeriodS  = 0.25
	MinSetpointC = 0.0
	MaxSetpointC = 300.0
	MinPVC       = -100.0
	MaxPVC       = 300.0

	RoomTempC          = 24.0
	MinDoorEfficiency  = 0.45
	DoorNonlinearityNL = 3.0

	MaxChannelIndex = 7 // channels 0..7
	MaxRelayIndex   = 7 // relays 0..7

	pwmDefaultPeriodMs = 1000

	StateIdle        = "Idle"
	StateSteady      = "Steady State"
	StateAlarming    = "Alarming"
	StateSensorError = "Sensor Error"
)

// Door holds servo calibration and preview state.
type Door struct {
	ClosedAngleDeg  float64
	OpenAngleDeg    float64
	MaxSpeedDegPerS float64
	PreviewAngleDeg float64
}

// Snapshot is a point-in-time, lock-free copy of ControllerState for
// getters, telemetry, and the data logger.
type Snapshot struct {
	Running                 bool
	Alarming                bool
	DoorOpen                bool
	DoorPreviewActive       bool
	StateLabel              string
	SetpointC               float64
	ProcessValueC           float64
	FilteredPVC             float64
	HasFilteredPV           bool
	PIDOutput               float64
	SetpointLockedByProfile bool

	InputFilterMs float64
	InputsUsed    []int

	RelaysPWM             map[int]float64
	RelaysPWMAccumulators map[int]float64
	RelaysWhenRunning     []int

	Door             Door
	DoorCurrentAngle float64
}

// Controller is the Tick Supervisor. All ControllerState fields are
// protected by mu; getters copy fields under the lock and release
// before returning, per spec.md §5.
type Controller struct {
	hal hal.HardwareAbstraction
	pid *pid.Engine

	masterPWM *softpwm.PWM

	mu sync.Mutex

	running           bool
	alarming          bool
	doorOpen          bool
	doorPreviewActive bool
	stateLabel        string

	setpointC               float64
	processValueC           float64
	filteredPVC             float64
	hasFilteredPV           bool
	pidOutput               float64
	setpointLockedByProfile bool

	inputFilterMs float64
	inputsUsed    []int

	relaysPWM             map[int]float64
	relaysPWMAccumulators map[int]float64
	relaysWhenRunning     []int

	door             Door
	doorCurrentAngle float64
}
