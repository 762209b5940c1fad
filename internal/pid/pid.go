// Package pid implements the chamber's bidirectional (heat/cool) PID
// engine: separate heating/cooling gain sets, derivative-on-measurement
// with low-pass filtering, two-degree-of-freedom setpoint weighting,
// conditional anti-windup by back-calculation, integral zone gating,
// and an exponential integral leak.
package pid

import (
	"fmt"
	"math"
	"sync"

	"github.com/sweeney/reflowd/internal/clock"
)

// OutputMin and OutputMax bound the PID command, per spec constant ±100.
const (
	OutputMin = -100.0
	OutputMax = 100.0

	defaultSetpointWeight = 0.5
)

// Gains holds one gain set (heating or cooling).
type Gains struct {
	Kp float64
	Ki float64
	Kd float64
}

// Readback exposes the last computed term breakdown, for telemetry and tests.
type Readback struct {
	P      float64
	I      float64
	D      float64
	Output float64
	Error  float64
	PV     float64
}

// Engine is a stateful bidirectional PID controller. One Engine is owned
// by a Controller and driven only from the control thread; TuneHeating,
// TuneCooling, and the other tuning setters may be called from any
// thread and take effect atomically under tuneMu.
type Engine struct {
	clock clock.Source

	tuneMu                sync.Mutex
	heating               Gains
	cooling               Gains
	setpointWeight        float64
	derivativeFilterTimeS float64
	integralZoneC         float64
	integralLeakTimeS     float64

	// Transient state, touched only from Calculate (single control thread).
	integral       float64
	previousPV     float64
	previousError  float64
	dFiltered      float64
	lastTimeUs     int64
	firstRun       bool
	lastCooling    bool
	previous       Readback
}

// New constructs an Engine with default tuning: zero gains, setpoint
// weight 0.5, derivative filter and integral zone/leak disabled.
func New(src clock.Source) *Engine {
	return &Engine{
		clock:          src,
		setpointWeight: defaultSetpointWeight,
		firstRun:       true,
	}
}

// Calculate runs one PID step and returns the clamped output.
func (e *Engine) Calculate(setpoint, processValue float64) float64 {
	e.tuneMu.Lock()
	heating := e.heating
	cooling := e.cooling
	spWeight := e.setpointWeight
	tauD := e.derivativeFilterTimeS
	zoneC := e.integralZoneC
	tauLeak := e.integralLeakTimeS
	e.tuneMu.Unlock()

	nowUs := e.clock.NowUs()

	var dt float64
	if e.firstRun {
		dt = 1e-6
		e.previousPV = processValue
		e.previousError = setpoint - processValue
		e.dFiltered = 0
	} else {
		dt = float64(nowUs-e.lastTimeUs) / 1e6
		if dt < 1e-6 {
			dt = 1e-6
		}
	}

	errorTrue := setpoint - processValue
	errorWeighted := spWeight*setpoint - processValue

	var dRaw float64
	if !e.firstRun {
		dRaw = -(processValue - e.previousPV) / dt
	}
	alpha := 1.0
	if tauD > 0 {
		alpha = dt / (tauD + dt)
	}
	e.dFiltered = alpha*dRaw + (1-alpha)*e.dFiltered

	// Trial P+D using cooling gains decides which gain set is active.
	pCoolTrial := clampSign(cooling.Kp*errorWeighted, errorTrue)
	dCoolTrial := cooling.Kd * e.dFiltered
	pdCool := pCoolTrial + dCoolTrial
	coolingMode := pdCool < 0

	if tauLeak > 0 {
		e.integral *= math.Exp(-dt / tauLeak)
	}

	allowZone := zoneC == 0 || math.Abs(errorTrue) <= zoneC
	candidate := e.integral + errorTrue*dt
	if coolingMode {
		if math.Abs(candidate) < math.Abs(e.integral) {
			e.integral = candidate
		}
	} else if allowZone {
		e.integral = candidate
	}

	active := heating
	if coolingMode {
		active = cooling
	}

	pT := clampSign(active.Kp*errorWeighted, errorTrue)
	dT := active.Kd * e.dFiltered

	iTermUnclamped := active.Ki * e.integral
	iLo := OutputMin - (pT + dT)
	iHi := OutputMax - (pT + dT)
	iTerm := clamp(iTermUnclamped, iLo, iHi)
	if active.Ki != 0 {
		e.integral = iTerm / active.Ki
	}

	output := clamp(pT+dT+iTerm, OutputMin, OutputMax)

	e.previous = Readback{P: pT, I: iTerm, D: dT, Output: output, Error: errorTrue, PV: processValue}
	e.previousPV = processValue
	e.previousError = errorTrue
	e.lastTimeUs = nowUs
	e.lastCooling = coolingMode
	e.firstRun = false

	return output
}

// clampSign forces pT's sign to match err's sign (prevents "wrong side"
// contribution when the proportional term acts on a weighted error).
func clampSign(pT, err float64) float64 {
	switch {
	case err > 0 && pT < 0:
		return 0
	case err < 0 && pT > 0:
		return 0
	case err == 0:
		return 0
	default:
		return pT
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Previous returns the last computed term breakdown.
func (e *Engine) Previous() Readback {
	return e.previous
}

// IsCooling reports whether the most recent Calculate selected the
// cooling gain set.
func (e *Engine) IsCooling() bool {
	return e.lastCooling
}

// TuneHeating sets the heating gain set. Gains must be non-negative.
func (e *Engine) TuneHeating(g Gains) error {
	if err := validateGains(g); err != nil {
		return err
	}
	e.tuneMu.Lock()
	e.heating = g
	e.tuneMu.Unlock()
	return nil
}

// TuneCooling sets the cooling gain set. Gains must be non-negative.
func (e *Engine) TuneCooling(g Gains) error {
	if err := validateGains(g); err != nil {
		return err
	}
	e.tuneMu.Lock()
	e.cooling = g
	e.tuneMu.Unlock()
	return nil
}

func validateGains(g Gains) error {
	if g.Kp < 0 || g.Ki < 0 || g.Kd < 0 {
		return fmt.Errorf("pid: gains must be non-negative, got %+v", g)
	}
	return nil
}

// SetDerivativeFilterTime sets the derivative low-pass time constant in
// seconds (0 disables filtering).
func (e *Engine) SetDerivativeFilterTime(tauS float64) error {
	if tauS < 0 {
		return fmt.Errorf("pid: derivative filter time must be >= 0, got %v", tauS)
	}
	e.tuneMu.Lock()
	e.derivativeFilterTimeS = tauS
	e.tuneMu.Unlock()
	return nil
}

// SetSetpointWeight sets the P-term setpoint weight, must lie in [0,1].
func (e *Engine) SetSetpointWeight(w float64) error {
	if w < 0 || w > 1 {
		return fmt.Errorf("pid: setpoint weight must be in [0,1], got %v", w)
	}
	e.tuneMu.Lock()
	e.setpointWeight = w
	e.tuneMu.Unlock()
	return nil
}

// SetIntegralZoneC sets the error band outside which the integrator is
// frozen (0 disables zone gating).
func (e *Engine) SetIntegralZoneC(zoneC float64) error {
	if zoneC < 0 {
		return fmt.Errorf("pid: integral zone must be >= 0, got %v", zoneC)
	}
	e.tuneMu.Lock()
	e.integralZoneC = zoneC
	e.tuneMu.Unlock()
	return nil
}

// SetIntegralLeakTimeS sets the integral leak time constant in seconds
// (0 disables leak).
func (e *Engine) SetIntegralLeakTimeS(tauS float64) error {
	if tauS < 0 {
		return fmt.Errorf("pid: integral leak time must be >= 0, got %v", tauS)
	}
	e.tuneMu.Lock()
	e.integralLeakTimeS = tauS
	e.tuneMu.Unlock()
	return nil
}

// Reset clears all transient PID state (integrator, derivative filter,
// last-sample timestamp). Gains and other tuning are untouched.
func (e *Engine) Reset() {
	e.integral = 0
	e.previousPV = 0
	e.previousError = 0
	e.dFiltered = 0
	e.lastTimeUs = 0
	e.firstRun = true
	e.previous = Readback{}
}
