package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/reflowd/internal/apperr"
)

func directStep(sp float64) ProfileStep { return ProfileStep{Kind: StepDirect, SetpointC: sp} }

func rampTimeStep(sp, seconds float64) ProfileStep {
	return ProfileStep{Kind: StepRampTime, SetpointC: sp, RampTimeS: seconds}
}

func soakStep(sp, seconds, deviation float64, guaranteed bool) ProfileStep {
	return ProfileStep{Kind: StepSoak, SetpointC: sp, SoakTimeS: seconds, Guaranteed: guaranteed, DeviationC: deviation}
}

func jumpStep(target, repeat int) ProfileStep {
	return ProfileStep{Kind: StepJump, TargetStepNumber: target, RepeatCount: repeat}
}

// S4 from spec.md: direct -> ramp_time -> soak(guaranteed) -> jump,
// with PV tracking SP perfectly. Two full passes then Completed.
func TestTick_DirectRampSoakJump(t *testing.T) {
	h := &fakeHandle{running: true}
	e := New(h)

	def := ProfileDefinition{
		Name: "reflow",
		Steps: []ProfileStep{
			directStep(50),
			rampTimeStep(100, 60),
			soakStep(100, 30, 2, true),
			jumpStep(1, 1),
		},
	}
	require.NoError(t, e.Start(def, SourceUploaded, -1))

	const dt = 0.25
	ticks := 0
	for e.IsRunning() && ticks < int(200/dt) {
		require.NoError(t, e.Tick(dt))
		h.pv = h.setpoint // perfect tracking so guaranteed-soak always accumulates
		ticks++
	}

	snap := e.Snapshot()
	assert.Equal(t, EndCompleted, snap.LastEndReason)
	assert.False(t, snap.Running)
	assert.InDelta(t, 180.0, float64(ticks)*dt, 2.0)
}

// S5 from spec.md: a jump loop with a huge repeat count must trip the
// transition guard within a single tick.
func TestTick_TransitionGuardTripsOnPathologicalJumpRing(t *testing.T) {
	h := &fakeHandle{running: true}
	e := New(h)

	// Jumps may only point strictly backward, so the loop is built from
	// step 1 (direct) and step 2 (jump back to step 1, repeat 10000):
	// every pass crosses two step boundaries, far past the 256 cap.
	def := ProfileDefinition{
		Name: "guard",
		Steps: []ProfileStep{
			directStep(50),
			jumpStep(1, 10000),
		},
	}
	require.NoError(t, e.Start(def, SourceUploaded, -1))

	err := e.Tick(0.25)
	assert.True(t, apperr.Is(err, apperr.TransitionGuardExceeded))

	snap := e.Snapshot()
	assert.Equal(t, EndTransitionGuard, snap.LastEndReason)
	assert.False(t, snap.Running)
	assert.False(t, h.running, "controller must be stopped when the guard trips")
}

// Testable property 9: outer jump (repeat R_out) wrapping an inner
// jump (repeat R_in) runs the inner body exactly (R_out+1)*(R_in+1)
// times.
func TestTick_NestedJumpRepeatCounts(t *testing.T) {
	h := &fakeHandle{running: true}
	e := New(h)

	const rOut, rIn = 2, 3
	const bodySetpoint = 3

	def := ProfileDefinition{
		Name: "nested",
		Steps: []ProfileStep{
			directStep(1),           // 1: outer entry / outer jump target
			directStep(2),           // 2: inner entry / inner jump target
			directStep(bodySetpoint), // 3: body marker (counted)
			jumpStep(2, rIn),
			jumpStep(1, rOut),
		},
	}
	require.NoError(t, e.Start(def, SourceUploaded, -1))

	for ticks := 0; e.IsRunning() && ticks < 10000; ticks++ {
		require.NoError(t, e.Tick(0.25))
	}

	snap := e.Snapshot()
	assert.Equal(t, EndCompleted, snap.LastEndReason)

	bodyVisits := 0
	for _, sp := range h.spLog {
		if sp == bodySetpoint {
			bodyVisits++
		}
	}
	assert.Equal(t, (rOut+1)*(rIn+1), bodyVisits)
}

func TestValidate_RejectsForwardOrSelfJump(t *testing.T) {
	def := ProfileDefinition{
		Name: "bad",
		Steps: []ProfileStep{
			directStep(50),
			jumpStep(2, 1),
		},
	}
	errs := Validate(def)
	require.NotEmpty(t, errs)
}

func TestValidate_RejectsEmptyWait(t *testing.T) {
	def := ProfileDefinition{
		Name: "bad",
		Steps: []ProfileStep{
			{Kind: StepWait},
		},
	}
	errs := Validate(def)
	require.NotEmpty(t, errs)
}

func TestStart_InvalidProfileDoesNotRun(t *testing.T) {
	h := &fakeHandle{running: true}
	e := New(h)
	def := ProfileDefinition{Name: "", Steps: nil}
	err := e.Start(def, SourceUploaded, -1)
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))
	assert.False(t, e.IsRunning())
}

func TestStart_PropagatesControllerStartFailure(t *testing.T) {
	h := &fakeHandle{running: false, startErr: assertErr{}}
	e := New(h)
	def := ProfileDefinition{Name: "p", Steps: []ProfileStep{directStep(50)}}

	err := e.Start(def, SourceUploaded, -1)
	assert.Error(t, err)
	assert.False(t, e.IsRunning())
	assert.Equal(t, EndStartFailed, e.Snapshot().LastEndReason)
}

type assertErr struct{}

func (assertErr) Error() string { return "start failed" }

func TestTick_ControllerStoppedEndsRun(t *testing.T) {
	h := &fakeHandle{running: true}
	e := New(h)
	def := ProfileDefinition{Name: "p", Steps: []ProfileStep{rampTimeStep(100, 60)}}
	require.NoError(t, e.Start(def, SourceUploaded, -1))

	h.running = false
	require.NoError(t, e.Tick(0.25))

	snap := e.Snapshot()
	assert.False(t, snap.Running)
	assert.Equal(t, EndControllerStopped, snap.LastEndReason)
}

func TestCancel_ReleasesLockAndEndsRun(t *testing.T) {
	h := &fakeHandle{running: true}
	e := New(h)
	def := ProfileDefinition{Name: "p", Steps: []ProfileStep{rampTimeStep(100, 60)}}
	require.NoError(t, e.Start(def, SourceUploaded, -1))
	assert.True(t, h.locked)

	e.Cancel()

	assert.False(t, e.IsRunning())
	assert.False(t, h.locked)
	assert.Equal(t, EndCancelledByUser, e.Snapshot().LastEndReason)
}
