package controller

import "math"

// dispatchRunning applies the PID command u to the relay bank and
// servo vent, per spec.md §4.3 step 3.
func (c *Controller) dispatchRunning(u, pv float64) {
	c.mu.Lock()
	closed := c.door.ClosedAngleDeg
	open := c.door.OpenAngleDeg
	c.mu.Unlock()

	var targetAngle float64
	switch {
	case u > 0:
		c.masterPWM.SetDuty(u / 100)
		targetAngle = closed
	case u < 0:
		c.masterPWM.SetDuty(0)
		c.masterPWM.ForceOff()
		phi := coolingDoorFraction(u, pv)
		targetAngle = closed + phi*(open-closed)
	default:
		c.masterPWM.SetDuty(0)
		c.masterPWM.ForceOff()
		targetAngle = closed
	}

	c.applyServoRateLimited(targetAngle)
}

// dispatchIdle applies the not-running actuator state: relays off,
// servo parked at the preview angle (if preview is active) or the
// open/closed calibration angle that matches door_open.
func (c *Controller) dispatchIdle() {
	c.masterPWM.SetDuty(0)

	c.mu.Lock()
	preview := c.doorPreviewActive
	previewAngle := c.door.PreviewAngleDeg
	doorOpen := c.doorOpen
	closed := c.door.ClosedAngleDeg
	open := c.door.OpenAngleDeg
	c.mu.Unlock()

	var targetAngle float64
	switch {
	case preview:
		targetAngle = previewAngle
	case doorOpen:
		targetAngle = open
	default:
		targetAngle = closed
	}

	c.applyServoRateLimited(targetAngle)
}

// applyServoRateLimited moves the tracked servo angle toward target by
// at most door_max_speed_deg_per_s * T_tick, then commands the result
// to the hardware port outside the controller mutex.
func (c *Controller) applyServoRateLimited(target float64) {
	c.mu.Lock()
	current := c.doorCurrentAngle
	maxStep := c.door.MaxSpeedDegPerS * tickPeriodS
	c.mu.Unlock()

	delta := target - current
	if delta > maxStep {
		delta = maxStep
	} else if delta < -maxStep {
		delta = -maxStep
	}
	next := current + delta

	if err := c.hal.SetServoAngle(next); err == nil {
		c.mu.Lock()
		c.doorCurrentAngle = next
		c.mu.Unlock()
	}
}

// coolingDoorFraction implements the inverse concave vent-opening map
// from spec.md §4.3: cooling is temperature-dependent and strongly
// non-linear, so small openings are linearized to dominate the low end
// of the demand curve.
func coolingDoorFraction(u, pv float64) float64 {
	demand := clamp01(-u / 100)
	norm := clamp01((pv - RoomTempC) / math.Max(MaxPVC-RoomTempC, 1))
	eff := MinDoorEfficiency + (1-MinDoorEfficiency)*norm
	comp := clamp01(demand / math.Max(eff, 0.05))
	return 1 - math.Pow(1-comp, 1/DoorNonlinearityNL)
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

// stopActuators forces relays off (both the PWM bank and the
// always-on-while-running set) and the SoftPWM scheduler stopped. Used
// by the alarm path and by Stop.
func (c *Controller) stopActuators() {
	c.masterPWM.SetDuty(0)
	c.masterPWM.ForceOff()
	c.masterPWM.Stop()

	c.mu.Lock()
	relays := append([]int(nil), c.relaysWhenRunning...)
	c.mu.Unlock()

	for _, idx := range relays {
		_ = c.hal.SetRelayState(idx, false)
	}
}
