package profile

import (
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/sweeney/reflowd/internal/apperr"
)

// Engine is the ProfileEngine: a step-sequencer state machine that
// drives a ControllerHandle's setpoint over time. No back-pointer to
// the controller exists; the owner calls Tick once per control cadence
// (spec.md §9).
type Engine struct {
	handle ControllerHandle

	mu sync.Mutex

	running           bool
	runID             uuid.UUID
	def               ProfileDefinition
	source            Source
	slotIndex         int
	stepIndex         int
	stepElapsedS      float64
	profileElapsedS   float64
	stepStartSetpoint float64
	waitTimeLatched   bool
	waitPVLatched     bool
	soakAccumulatedS  float64
	jumpRemaining     map[int]int
	lastEndReason     EndReason
}

// New constructs an Engine bound to a ControllerHandle.
func New(handle ControllerHandle) *Engine {
	return &Engine{
		handle:        handle,
		jumpRemaining: make(map[int]int),
		lastEndReason: EndNone,
	}
}

// Snapshot copies the current ProfileRuntime for read-only consumption.
func (e *Engine) Snapshot() Runtime {
	e.mu.Lock()
	defer e.mu.Unlock()
	jr := make(map[int]int, len(e.jumpRemaining))
	for k, v := range e.jumpRemaining {
		jr[k] = v
	}
	return Runtime{
		Running:           e.running,
		RunID:             e.runID,
		ActiveProfile:     e.def,
		Source:            e.source,
		SlotIndex:         e.slotIndex,
		CurrentStepIndex:  e.stepIndex,
		StepElapsedS:      e.stepElapsedS,
		ProfileElapsedS:   e.profileElapsedS,
		StepStartSetpoint: e.stepStartSetpoint,
		WaitTimeLatched:   e.waitTimeLatched,
		WaitPVLatched:     e.waitPVLatched,
		SoakAccumulatedS:  e.soakAccumulatedS,
		JumpRemaining:     jr,
		LastEndReason:     e.lastEndReason,
	}
}

func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start validates def, starts the controller if it isn't already
// running, asserts the setpoint lock, and begins executing step 0.
func (e *Engine) Start(def ProfileDefinition, source Source, slotIndex int) error {
	if errs := Validate(def); len(errs) > 0 {
		e.mu.Lock()
		e.lastEndReason = EndInvalidProfile
		e.mu.Unlock()
		return validationErr(errs)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return apperr.New(apperr.InvalidState, "profile already running")
	}

	if !e.handle.IsRunning() {
		if err := e.handle.Start(); err != nil {
			e.lastEndReason = EndStartFailed
			return apperr.Wrap(apperr.InvalidState, err, "controller start failed")
		}
	}

	e.handle.SetProfileSetpointLock(true)

	e.runID = uuid.New()
	e.def = def
	e.source = source
	e.slotIndex = slotIndex
	e.stepIndex = 0
	e.profileElapsedS = 0
	e.stepElapsedS = 0
	e.soakAccumulatedS = 0
	e.waitTimeLatched = false
	e.waitPVLatched = false
	e.stepStartSetpoint = e.handle.GetSetpoint()
	e.lastEndReason = EndNone
	e.jumpRemaining = make(map[int]int, len(def.Steps))
	for i, step := range def.Steps {
		if step.Kind == StepJump {
			e.jumpRemaining[i] = step.RepeatCount
		}
	}
	e.running = true

	return nil
}

// Cancel ends an in-progress run at the caller's request.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.endLocked(EndCancelledByUser, false)
}

// Tick advances the active step by dtSeconds, crossing as many step
// boundaries as necessary within the MAX_TRANSITIONS_PER_TICK guard.
func (e *Engine) Tick(dtSeconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	if !e.handle.IsRunning() {
		e.endLocked(EndControllerStopped, false)
		return nil
	}

	e.profileElapsedS += dtSeconds
	remaining := dtSeconds
	transitions := 0

	for e.running {
		transitions++
		if transitions > MaxTransitionsPerTick {
			e.endLocked(EndTransitionGuard, true)
			return apperr.New(apperr.TransitionGuardExceeded, "profile exceeded %d transitions in one tick", MaxTransitionsPerTick)
		}

		step := e.def.Steps[e.stepIndex]
		advance, nextIndex := e.processStep(step, remaining)
		remaining = 0
		if !advance {
			break
		}

		if nextIndex < 0 {
			nextIndex = e.stepIndex + 1
		}
		e.stepIndex = nextIndex
		e.stepElapsedS = 0
		e.soakAccumulatedS = 0
		e.waitTimeLatched = false
		e.waitPVLatched = false

		if e.stepIndex >= len(e.def.Steps) {
			e.endLocked(EndCompleted, false)
			break
		}
		e.stepStartSetpoint = e.handle.GetSetpoint()
	}

	return nil
}

// processStep runs one step's per-tick logic and reports whether it
// should advance this tick, and to which step index (-1 = next in
// sequence).
func (e *Engine) processStep(step ProfileStep, dt float64) (advance bool, nextIndex int) {
	nextIndex = -1

	switch step.Kind {
	case StepDirect:
		e.handle.SetSetpointFromProfile(step.SetpointC)
		advance = true

	case StepWait:
		timeOK := step.WaitTimeS == nil
		if step.WaitTimeS != nil {
			e.stepElapsedS += dt
			if e.stepElapsedS >= *step.WaitTimeS {
				e.waitTimeLatched = true
			}
			timeOK = e.waitTimeLatched
		}
		pvOK := step.PVTargetC == nil
		if step.PVTargetC != nil {
			pv := e.handle.GetProcessValue()
			if math.Abs(pv-*step.PVTargetC) <= WaitPVToleranceC {
				e.waitPVLatched = true
			}
			pvOK = e.waitPVLatched
		}
		advance = timeOK && pvOK

	case StepSoak:
		e.handle.SetSetpointFromProfile(step.SetpointC)
		pv := e.handle.GetProcessValue()
		accumulate := true
		if step.Guaranteed && math.Abs(pv-step.SetpointC) > step.DeviationC {
			accumulate = false
		}
		if accumulate {
			e.soakAccumulatedS += dt
		}
		advance = e.soakAccumulatedS >= step.SoakTimeS

	case StepRampTime:
		e.stepElapsedS += dt
		frac := clamp01(e.stepElapsedS / step.RampTimeS)
		sp := e.stepStartSetpoint + frac*(step.SetpointC-e.stepStartSetpoint)
		e.handle.SetSetpointFromProfile(sp)
		advance = e.stepElapsedS >= step.RampTimeS

	case StepRampRate:
		dur := math.Max(math.Abs(step.SetpointC-e.stepStartSetpoint)/step.RampRateCPerS, 1e-3)
		e.stepElapsedS += dt
		frac := clamp01(e.stepElapsedS / dur)
		sp := e.stepStartSetpoint + frac*(step.SetpointC-e.stepStartSetpoint)
		e.handle.SetSetpointFromProfile(sp)
		advance = e.stepElapsedS >= dur

	case StepJump:
		idx := e.stepIndex
		if e.jumpRemaining[idx] > 0 {
			e.jumpRemaining[idx]--
			target := step.TargetStepNumber - 1
			for i := target; i < idx; i++ {
				if e.def.Steps[i].Kind == StepJump {
					e.jumpRemaining[i] = e.def.Steps[i].RepeatCount
				}
			}
			nextIndex = target
		} else {
			e.jumpRemaining[idx] = step.RepeatCount
		}
		advance = true
	}

	return advance, nextIndex
}

func (e *Engine) endLocked(reason EndReason, stopController bool) {
	e.running = false
	e.lastEndReason = reason
	e.handle.SetProfileSetpointLock(false)
	if stopController {
		_ = e.handle.Stop()
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
