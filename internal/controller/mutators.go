package controller

import (
	"github.com/sweeney/reflowd/internal/apperr"
	"github.com/sweeney/reflowd/internal/pid"
)

// Start transitions Idle -> Steady State. Refused while alarming or
// already running. Turns on the always-on relay set and starts the
// master PWM scheduler; on hardware failure the relay set is rolled
// back to off before the error is returned.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.alarming {
		c.mu.Unlock()
		return apperr.New(apperr.InvalidState, "cannot start while alarming")
	}
	if c.running {
		c.mu.Unlock()
		return apperr.New(apperr.InvalidState, "already running")
	}
	relays := append([]int(nil), c.relaysWhenRunning...)
	c.mu.Unlock()

	turnedOn := make([]int, 0, len(relays))
	for _, idx := range relays {
		if err := c.hal.SetRelayState(idx, true); err != nil {
			for _, done := range turnedOn {
				_ = c.hal.SetRelayState(done, false)
			}
			return apperr.Wrap(apperr.HardwareFailure, err, "start: enable relay %d", idx)
		}
		turnedOn = append(turnedOn, idx)
	}

	c.masterPWM.Start()

	c.mu.Lock()
	c.running = true
	c.stateLabel = StateSteady
	c.mu.Unlock()
	return nil
}

// Stop transitions Steady State -> Idle. Refused if not running.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return apperr.New(apperr.InvalidState, "not running")
	}
	c.mu.Unlock()

	c.stopActuators()

	c.mu.Lock()
	c.running = false
	if !c.alarming {
		c.stateLabel = StateIdle
	}
	c.mu.Unlock()
	return nil
}

// OpenDoor commands the vent open when not running.
func (c *Controller) OpenDoor() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return apperr.New(apperr.InvalidState, "cannot command door while running")
	}
	c.doorOpen = true
	c.doorPreviewActive = false
	return nil
}

// CloseDoor commands the vent closed when not running.
func (c *Controller) CloseDoor() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return apperr.New(apperr.InvalidState, "cannot command door while running")
	}
	c.doorOpen = false
	c.doorPreviewActive = false
	return nil
}

// SetSetpoint sets the user setpoint. Refused if a profile currently
// owns the setpoint lock; out-of-range values are rejected (not
// clamped) for user-origin writes.
func (c *Controller) SetSetpoint(sp float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setpointLockedByProfile {
		return apperr.New(apperr.InvalidState, "setpoint is locked by the active profile")
	}
	if sp < MinSetpointC || sp > MaxSetpointC {
		return apperr.New(apperr.InvalidArgument, "setpoint %v out of range [%v,%v]", sp, MinSetpointC, MaxSetpointC)
	}
	c.setpointC = sp
	return nil
}

// SetSetpointFromProfile writes the setpoint on behalf of the
// ProfileEngine. It bypasses the setpoint lock but still clamps to
// [MinSetpointC, MaxSetpointC].
func (c *Controller) SetSetpointFromProfile(sp float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sp < MinSetpointC {
		sp = MinSetpointC
	} else if sp > MaxSetpointC {
		sp = MaxSetpointC
	}
	c.setpointC = sp
}

// SetProfileSetpointLock acquires or releases the setpoint lock.
func (c *Controller) SetProfileSetpointLock(locked bool) {
	c.mu.Lock()
	c.setpointLockedByProfile = locked
	c.mu.Unlock()
}

// GetSetpoint returns the current setpoint.
func (c *Controller) GetSetpoint() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setpointC
}

// GetProcessValue returns the current filtered process value.
func (c *Controller) GetProcessValue() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filteredPVC
}

// IsRunning reports whether the controller is in Steady State.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetInputFilterTime sets the single-pole LPF time constant in
// milliseconds.
func (c *Controller) SetInputFilterTime(ms float64) error {
	if ms < 0 {
		return apperr.New(apperr.InvalidArgument, "input filter time must be >= 0, got %v", ms)
	}
	c.mu.Lock()
	c.inputFilterMs = ms
	c.mu.Unlock()
	return nil
}

// SetPIDGains tunes both gain sets.
func (c *Controller) SetPIDGains(heating, cooling pid.Gains) error {
	if err := c.pid.TuneHeating(heating); err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "tune heating gains")
	}
	if err := c.pid.TuneCooling(cooling); err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "tune cooling gains")
	}
	return nil
}

// SetDerivativeFilterTime delegates to the owned PID engine.
func (c *Controller) SetDerivativeFilterTime(tauS float64) error {
	if err := c.pid.SetDerivativeFilterTime(tauS); err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "set derivative filter time")
	}
	return nil
}

// SetSetpointWeight delegates to the owned PID engine.
func (c *Controller) SetSetpointWeight(w float64) error {
	if err := c.pid.SetSetpointWeight(w); err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "set setpoint weight")
	}
	return nil
}

// SetIntegralZoneC delegates to the owned PID engine.
func (c *Controller) SetIntegralZoneC(zoneC float64) error {
	if err := c.pid.SetIntegralZoneC(zoneC); err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "set integral zone")
	}
	return nil
}

// SetIntegralLeakTimeS delegates to the owned PID engine.
func (c *Controller) SetIntegralLeakTimeS(tauS float64) error {
	if err := c.pid.SetIntegralLeakTimeS(tauS); err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "set integral leak time")
	}
	return nil
}

func validChannel(idx int) bool {
	return idx >= 0 && idx <= MaxChannelIndex
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func removeInt(s []int, v int) []int {
	out := make([]int, 0, len(s))
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// AddInputChannel appends a channel index (0..7, no duplicates) to the
// set of channels sampled each tick.
func (c *Controller) AddInputChannel(ch int) error {
	if !validChannel(ch) {
		return apperr.New(apperr.InvalidArgument, "channel %d out of range [0,%d]", ch, MaxChannelIndex)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if containsInt(c.inputsUsed, ch) {
		return apperr.New(apperr.InvalidArgument, "channel %d already in use", ch)
	}
	c.inputsUsed = append(c.inputsUsed, ch)
	return nil
}

// RemoveInputChannel removes a channel index. Removing the last
// remaining channel restores the default of channel 0 instead of
// leaving the set empty, per the inputs_used invariant.
func (c *Controller) RemoveInputChannel(ch int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !containsInt(c.inputsUsed, ch) {
		return apperr.New(apperr.InvalidArgument, "channel %d not in use", ch)
	}
	next := removeInt(c.inputsUsed, ch)
	if len(next) == 0 {
		next = []int{0}
	}
	c.inputsUsed = next
	return nil
}

// SetInputChannels replaces the whole channel set. The set must be
// non-empty and every index must be in range.
func (c *Controller) SetInputChannels(chs []int) error {
	if len(chs) == 0 {
		return apperr.New(apperr.InvalidArgument, "input channel set must not be empty")
	}
	seen := make(map[int]bool, len(chs))
	for _, ch := range chs {
		if !validChannel(ch) {
			return apperr.New(apperr.InvalidArgument, "channel %d out of range [0,%d]", ch, MaxChannelIndex)
		}
		if seen[ch] {
			return apperr.New(apperr.InvalidArgument, "channel %d duplicated", ch)
		}
		seen[ch] = true
	}
	c.mu.Lock()
	c.inputsUsed = append([]int(nil), chs...)
	c.mu.Unlock()
	return nil
}

// AddSetRelayPWM configures (adding or replacing) relay idx's PWM
// weight in [0,1]. The accumulator map gains a matching entry so its
// key set always equals the weight map's key set.
func (c *Controller) AddSetRelayPWM(idx int, weight float64) error {
	if idx < 0 || idx > MaxRelayIndex {
		return apperr.New(apperr.InvalidArgument, "relay %d out of range [0,%d]", idx, MaxRelayIndex)
	}
	if weight < 0 || weight > 1 {
		return apperr.New(apperr.InvalidArgument, "relay weight %v out of range [0,1]", weight)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relaysPWM[idx] = weight
	if _, ok := c.relaysPWMAccumulators[idx]; !ok {
		c.relaysPWMAccumulators[idx] = 0
	}
	return nil
}

// SetRelayPWM is an alias of AddSetRelayPWM for an already-configured relay.
func (c *Controller) SetRelayPWM(idx int, weight float64) error {
	return c.AddSetRelayPWM(idx, weight)
}

// RemoveRelayPWM removes relay idx from the weighted dispatch set,
// keeping the weight and accumulator key sets equal.
func (c *Controller) RemoveRelayPWM(idx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.relaysPWM[idx]; !ok {
		return apperr.New(apperr.InvalidArgument, "relay %d not configured", idx)
	}
	delete(c.relaysPWM, idx)
	delete(c.relaysPWMAccumulators, idx)
	return nil
}

// SetRelayPWMEnabled with enabled=false keeps relay idx's entry but sets
// its weight and accumulator to 0, so it no longer fires. enabled=true
// changes nothing: the previous weight is not restored, and the relay
// stays at weight 0 until SetRelayPWM gives it a new one.
func (c *Controller) SetRelayPWMEnabled(idx int, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.relaysPWM[idx]; !ok {
		return apperr.New(apperr.InvalidArgument, "relay %d not configured", idx)
	}
	if !enabled {
		c.relaysPWM[idx] = 0
		c.relaysPWMAccumulators[idx] = 0
	}
	return nil
}

// AddRelayWhenRunning appends a relay index to the always-on-while-running set.
func (c *Controller) AddRelayWhenRunning(idx int) error {
	if idx < 0 || idx > MaxRelayIndex {
		return apperr.New(apperr.InvalidArgument, "relay %d out of range [0,%d]", idx, MaxRelayIndex)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if containsInt(c.relaysWhenRunning, idx) {
		return apperr.New(apperr.InvalidArgument, "relay %d already in running set", idx)
	}
	c.relaysWhenRunning = append(c.relaysWhenRunning, idx)
	return nil
}

// RemoveRelayWhenRunning removes a relay index from the
// always-on-while-running set.
func (c *Controller) RemoveRelayWhenRunning(idx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !containsInt(c.relaysWhenRunning, idx) {
		return apperr.New(apperr.InvalidArgument, "relay %d not in running set", idx)
	}
	c.relaysWhenRunning = removeInt(c.relaysWhenRunning, idx)
	return nil
}

// SetRelayWhenRunning replaces the whole always-on-while-running set.
func (c *Controller) SetRelayWhenRunning(idxs []int) error {
	seen := make(map[int]bool, len(idxs))
	for _, idx := range idxs {
		if idx < 0 || idx > MaxRelayIndex {
			return apperr.New(apperr.InvalidArgument, "relay %d out of range [0,%d]", idx, MaxRelayIndex)
		}
		if seen[idx] {
			return apperr.New(apperr.InvalidArgument, "relay %d duplicated", idx)
		}
		seen[idx] = true
	}
	c.mu.Lock()
	c.relaysWhenRunning = append([]int(nil), idxs...)
	c.mu.Unlock()
	return nil
}

// SetDoorCalibrationAngles sets the closed/open servo endpoints, each in [0,180].
func (c *Controller) SetDoorCalibrationAngles(closedDeg, openDeg float64) error {
	if closedDeg < 0 || closedDeg > 180 {
		return apperr.New(apperr.InvalidArgument, "door closed angle %v out of range [0,180]", closedDeg)
	}
	if openDeg < 0 || openDeg > 180 {
		return apperr.New(apperr.InvalidArgument, "door open angle %v out of range [0,180]", openDeg)
	}
	c.mu.Lock()
	c.door.ClosedAngleDeg = closedDeg
	c.door.OpenAngleDeg = openDeg
	c.mu.Unlock()
	return nil
}

// SetDoorMaxSpeed sets the servo slew rate in deg/s, in [1,360].
func (c *Controller) SetDoorMaxSpeed(degPerS float64) error {
	if degPerS < 1 || degPerS > 360 {
		return apperr.New(apperr.InvalidArgument, "door max speed %v out of range [1,360]", degPerS)
	}
	c.mu.Lock()
	c.door.MaxSpeedDegPerS = degPerS
	c.mu.Unlock()
	return nil
}

// SetDoorPreviewAngle sets and activates a preview angle shown while
// not running, in [0,180].
func (c *Controller) SetDoorPreviewAngle(deg float64) error {
	if deg < 0 || deg > 180 {
		return apperr.New(apperr.InvalidArgument, "door preview angle %v out of range [0,180]", deg)
	}
	c.mu.Lock()
	c.door.PreviewAngleDeg = deg
	c.doorPreviewActive = true
	c.mu.Unlock()
	return nil
}

// ClearDoorPreview deactivates the preview angle.
func (c *Controller) ClearDoorPreview() {
	c.mu.Lock()
	c.doorPreviewActive = false
	c.mu.Unlock()
}
