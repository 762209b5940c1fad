// Package profile implements the hierarchical step-sequencer that drives
// Controller setpoints over time: ramp, soak, wait, and jump steps
// composed into a ProfileDefinition and executed tick-by-tick by Engine.
package profile

import (
	"time"

	"github.com/google/uuid"
)

const (
	MaxSlots               = 5
	MaxSteps               = 40
	MaxTransitionsPerTick  = 256
	WaitPVToleranceC       = 1.0
	TickPeriod             = 250 * time.Millisecond
	tickPeriodS            = 0.25
	MinSetpointC           = 0.0
	MaxSetpointC           = 300.0
)

// StepKind tags the variant held by a ProfileStep.
type StepKind string

const (
	StepDirect   StepKind = "direct"
	StepWait     StepKind = "wait"
	StepSoak     StepKind = "soak"
	StepRampTime StepKind = "ramp_time"
	StepRampRate StepKind = "ramp_rate"
	StepJump     StepKind = "jump"
)

// ProfileStep is a tagged-variant step. Only the fields relevant to Kind
// are meaningful; JSON marshaling omits fields that don't apply.
type ProfileStep struct {
	Kind StepKind `json:"type"`

	// Direct, Soak, RampTime, RampRate
	SetpointC float64 `json:"setpoint_c,omitempty"`

	// Wait
	WaitTimeS *float64 `json:"wait_time_s,omitempty"`
	PVTargetC *float64 `json:"pv_target_c,omitempty"`

	// Soak
	SoakTimeS  float64 `json:"soak_time_s,omitempty"`
	Guaranteed bool    `json:"guaranteed,omitempty"`
	DeviationC float64 `json:"deviation_c,omitempty"`

	// RampTime
	RampTimeS float64 `json:"ramp_time_s,omitempty"`

	// RampRate
	RampRateCPerS float64 `json:"ramp_rate_c_per_s,omitempty"`

	// Jump (1-based target step number)
	TargetStepNumber int `json:"target_step_number,omitempty"`
	RepeatCount      int `json:"repeat_count,omitempty"`
}

// ProfileDefinition is the persisted/validated shape of a thermal profile.
type ProfileDefinition struct {
	SchemaVersion int           `json:"schema_version"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Steps         []ProfileStep `json:"steps"`
}

// Source records where the active profile came from.
type Source string

const (
	SourceNone     Source = "none"
	SourceUploaded Source = "uploaded"
	SourceSlot     Source = "slot"
)

// EndReason records why a profile run ended.
type EndReason string

const (
	EndNone             EndReason = "none"
	EndCompleted        EndReason = "completed"
	EndCancelledByUser  EndReason = "cancelled_by_user"
	EndControllerStopped EndReason = "controller_stopped"
	EndTransitionGuard  EndReason = "transition_guard"
	EndStartFailed      EndReason = "start_failed"
	EndInvalidProfile   EndReason = "invalid_profile"
)

// Runtime is a snapshot of ProfileRuntime safe to hand to callers.
type Runtime struct {
	Running           bool
	RunID             uuid.UUID
	ActiveProfile     ProfileDefinition
	Source            Source
	SlotIndex         int
	CurrentStepIndex  int
	StepElapsedS      float64
	ProfileElapsedS   float64
	StepStartSetpoint float64
	WaitTimeLatched   bool
	WaitPVLatched     bool
	SoakAccumulatedS  float64
	JumpRemaining     map[int]int
	LastEndReason     EndReason
}

// ControllerHandle is the port ProfileEngine consumes to drive the
// Controller's setpoint without a back-reference (spec.md §9).
type ControllerHandle interface {
	GetSetpoint() float64
	SetSetpointFromProfile(sp float64)
	SetProfileSetpointLock(locked bool)
	GetProcessValue() float64
	IsRunning() bool
	Start() error
	Stop() error
}
