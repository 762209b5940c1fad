package controller

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/reflowd/internal/apperr"
	"github.com/sweeney/reflowd/internal/clock"
	"github.com/sweeney/reflowd/internal/hal"
	"github.com/sweeney/reflowd/internal/pid"
)

func newTestController(t *testing.T) (*Controller, *hal.FakeHAL, *clock.Fake) {
	t.Helper()
	h := hal.NewFakeHAL(map[int]float64{0: 25})
	c := clock.NewFake(0)
	ctl := New(h, c)
	require.NoError(t, ctl.SetPIDGains(pid.Gains{Kp: 15, Ki: 2, Kd: 0}, pid.Gains{Kp: 5, Ki: 0.5, Kd: 0}))
	return ctl, h, c
}

func TestStart_RejectedWhileAlarming(t *testing.T) {
	ctl, h, _ := newTestController(t)
	h.Channels = map[int]float64{0: hal.SensorError}
	require.True(t, apperr.Is(ctl.RunTick(), apperr.SensorError))
	assert.True(t, ctl.Snapshot().Alarming)

	err := ctl.Start()
	assert.True(t, apperr.Is(err, apperr.InvalidState))
}

func TestStart_RollsBackRelaysOnFailure(t *testing.T) {
	ctl, h, _ := newTestController(t)
	h.SetRelayErr = assertErr{}

	err := ctl.Start()
	assert.True(t, apperr.Is(err, apperr.HardwareFailure))
	assert.False(t, ctl.IsRunning())
}

type assertErr struct{}

func (assertErr) Error() string { return "relay failure" }

// S3 from spec.md: all channels SENSOR_ERROR for one tick while running.
func TestRunTick_SensorDropout(t *testing.T) {
	ctl, h, _ := newTestController(t)
	require.NoError(t, ctl.Start())

	h.Channels = map[int]float64{0: hal.SensorError}
	err := ctl.RunTick()
	assert.True(t, apperr.Is(err, apperr.SensorError))

	snap := ctl.Snapshot()
	assert.True(t, snap.Alarming)
	assert.Equal(t, StateSensorError, snap.StateLabel)
	assert.False(t, snap.Running)
	assert.False(t, ctl.masterPWM.IsRunning())
}

// S2 from spec.md: cooling trip produces a negative output, a door
// fraction above 0.5, and relays forced off.
func TestRunTick_CoolingTrip(t *testing.T) {
	ctl, h, _ := newTestController(t)
	require.NoError(t, ctl.SetDoorCalibrationAngles(0, 90))
	require.NoError(t, ctl.Start())
	require.NoError(t, ctl.SetSetpoint(25))

	h.Channels = map[int]float64{0: 200}
	require.NoError(t, ctl.RunTick())

	snap := ctl.Snapshot()
	assert.Less(t, snap.PIDOutput, 0.0)
	phi := coolingDoorFraction(snap.PIDOutput, snap.FilteredPVC)
	assert.Greater(t, phi, 0.5)
	assert.Equal(t, 0.0, ctl.masterPWM.Duty())
}

func TestSetSetpoint_RejectedWhileLocked(t *testing.T) {
	ctl, _, _ := newTestController(t)
	require.NoError(t, ctl.SetSetpoint(50))
	ctl.SetProfileSetpointLock(true)

	err := ctl.SetSetpoint(60)
	assert.True(t, apperr.Is(err, apperr.InvalidState))
	assert.Equal(t, 50.0, ctl.GetSetpoint())
}

func TestSetSetpointFromProfile_BypassesLockAndClamps(t *testing.T) {
	ctl, _, _ := newTestController(t)
	ctl.SetProfileSetpointLock(true)
	ctl.SetSetpointFromProfile(400)
	assert.Equal(t, MaxSetpointC, ctl.GetSetpoint())
}

func TestRemoveInputChannel_LastOneRestoresDefault(t *testing.T) {
	ctl, _, _ := newTestController(t)
	require.NoError(t, ctl.RemoveInputChannel(0))
	assert.Equal(t, []int{0}, ctl.Snapshot().InputsUsed)
}

func TestAddSetRelayPWM_KeepsAccumulatorKeysInSync(t *testing.T) {
	ctl, _, _ := newTestController(t)
	require.NoError(t, ctl.AddSetRelayPWM(5, 0.3))
	snap := ctl.Snapshot()
	_, ok := snap.RelaysPWMAccumulators[5]
	assert.True(t, ok)

	require.NoError(t, ctl.RemoveRelayPWM(5))
	snap = ctl.Snapshot()
	_, ok = snap.RelaysPWMAccumulators[5]
	assert.False(t, ok)

	for relay := range ctl.Snapshot().RelaysPWM {
		_, ok := ctl.Snapshot().RelaysPWMAccumulators[relay]
		assert.True(t, ok, "relay %d missing accumulator", relay)
	}
}

// Property 7 from spec.md §8: servo angle change per tick is bounded by
// door_max_speed_deg_per_s * T_tick.
func TestServoRateLimit_BoundedPerTick(t *testing.T) {
	ctl, h, _ := newTestController(t)
	require.NoError(t, ctl.SetDoorCalibrationAngles(0, 90))
	require.NoError(t, ctl.SetDoorMaxSpeed(10)) // deg/s
	require.NoError(t, ctl.Start())
	require.NoError(t, ctl.SetSetpoint(25))

	h.Channels = map[int]float64{0: 200}
	prev := ctl.Snapshot().DoorCurrentAngle
	maxStep := 10.0 * tickPeriodS

	for i := 0; i < 20; i++ {
		require.NoError(t, ctl.RunTick())
		cur := ctl.Snapshot().DoorCurrentAngle
		assert.LessOrEqual(t, math.Abs(cur-prev), maxStep+1e-9)
		prev = cur
	}
}

func TestOpenCloseDoor_RejectedWhileRunning(t *testing.T) {
	ctl, _, _ := newTestController(t)
	require.NoError(t, ctl.Start())
	assert.True(t, apperr.Is(ctl.OpenDoor(), apperr.InvalidState))
	assert.True(t, apperr.Is(ctl.CloseDoor(), apperr.InvalidState))
}
