package profile

import (
	"fmt"

	"github.com/sweeney/reflowd/internal/apperr"
)

// StepError describes a single invalid step, 1-based for user-facing
// reporting.
type StepError struct {
	StepNumber int
	Message    string
}

func (e StepError) String() string {
	return fmt.Sprintf("step %d: %s", e.StepNumber, e.Message)
}

// Validate checks a ProfileDefinition against spec.md §4.4's rules and
// returns the full list of per-step problems found (nil if valid).
func Validate(def ProfileDefinition) []StepError {
	var errs []StepError

	if def.Name == "" {
		errs = append(errs, StepError{StepNumber: 0, Message: "name must not be empty"})
	}
	if len(def.Steps) == 0 {
		errs = append(errs, StepError{StepNumber: 0, Message: "profile must have at least one step"})
	}
	if len(def.Steps) > MaxSteps {
		errs = append(errs, StepError{StepNumber: 0, Message: fmt.Sprintf("profile has %d steps, max is %d", len(def.Steps), MaxSteps)})
	}

	for i, step := range def.Steps {
		n := i + 1
		switch step.Kind {
		case StepDirect:
			if step.SetpointC < MinSetpointC || step.SetpointC > MaxSetpointC {
				errs = append(errs, StepError{n, "setpoint_c out of range"})
			}
		case StepWait:
			if step.WaitTimeS == nil && step.PVTargetC == nil {
				errs = append(errs, StepError{n, "wait requires wait_time_s or pv_target_c"})
			}
			if step.WaitTimeS != nil && *step.WaitTimeS <= 0 {
				errs = append(errs, StepError{n, "wait_time_s must be > 0"})
			}
		case StepSoak:
			if step.SetpointC < MinSetpointC || step.SetpointC > MaxSetpointC {
				errs = append(errs, StepError{n, "setpoint_c out of range"})
			}
			if step.SoakTimeS <= 0 {
				errs = append(errs, StepError{n, "soak_time_s must be > 0"})
			}
			if step.Guaranteed && step.DeviationC <= 0 {
				errs = append(errs, StepError{n, "guaranteed soak requires deviation_c > 0"})
			}
		case StepRampTime:
			if step.SetpointC < MinSetpointC || step.SetpointC > MaxSetpointC {
				errs = append(errs, StepError{n, "setpoint_c out of range"})
			}
			if step.RampTimeS <= 0 {
				errs = append(errs, StepError{n, "ramp_time_s must be > 0"})
			}
		case StepRampRate:
			if step.SetpointC < MinSetpointC || step.SetpointC > MaxSetpointC {
				errs = append(errs, StepError{n, "setpoint_c out of range"})
			}
			if step.RampRateCPerS <= 0 {
				errs = append(errs, StepError{n, "ramp_rate_c_per_s must be > 0"})
			}
		case StepJump:
			if step.TargetStepNumber < 1 || step.TargetStepNumber >= n {
				errs = append(errs, StepError{n, "jump target_step_number must be strictly backward"})
			}
			if step.RepeatCount < 0 {
				errs = append(errs, StepError{n, "repeat_count must be >= 0"})
			}
		default:
			errs = append(errs, StepError{n, fmt.Sprintf("unknown step type %q", step.Kind)})
		}
	}

	return errs
}

// validationErr collapses a StepError list into a single apperr for
// callers that just need an error return.
func validationErr(errs []StepError) error {
	if len(errs) == 0 {
		return nil
	}
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += e.String()
	}
	return apperr.New(apperr.InvalidArgument, "%s", msg)
}
