package controller

import (
	"github.com/sweeney/reflowd/internal/apperr"
	"github.com/sweeney/reflowd/internal/clock"
	"github.com/sweeney/reflowd/internal/hal"
	"github.com/sweeney/reflowd/internal/pid"
	"github.com/sweeney/reflowd/internal/softpwm"
)

// New constructs a Controller with default tuning: input filter 100ms,
// channel 0 only, relay 0 at full weight and relay 1 at half weight,
// relay 2 turned on while running — matching the defaults the original
// firmware ships with.
func New(h hal.HardwareAbstraction, src clock.Source) *Controller {
	c := &Controller{
		hal:           h,
		pid:           pid.New(src),
		stateLabel:    StateIdle,
		setpointC:     0,
		inputFilterMs: 100,
		inputsUsed:    []int{0},
		relaysPWM: map[int]float64{
			0: 1.0,
			1: 0.5,
		},
		relaysPWMAccumulators: map[int]float64{
			0: 0,
			1: 0,
		},
		relaysWhenRunning: []int{2},
		door: Door{
			ClosedAngleDeg:  0,
			OpenAngleDeg:    90,
			MaxSpeedDegPerS: 60,
		},
	}
	c.masterPWM = softpwm.New(pwmDefaultPeriodMs, 0, c.relayOnEdge, c.relayOffEdge, nil)
	return c
}

// PIDEngine exposes the owned PID engine for tuning and telemetry.
func (c *Controller) PIDEngine() *pid.Engine { return c.pid }

// Snapshot returns a point-in-time copy of the controller's state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	inputs := append([]int(nil), c.inputsUsed...)
	relaysWhenRunning := append([]int(nil), c.relaysWhenRunning...)
	relaysPWM := make(map[int]float64, len(c.relaysPWM))
	for k, v := range c.relaysPWM {
		relaysPWM[k] = v
	}
	acc := make(map[int]float64, len(c.relaysPWMAccumulators))
	for k, v := range c.relaysPWMAccumulators {
		acc[k] = v
	}
	return Snapshot{
		Running:                 c.running,
		Alarming:                c.alarming,
		DoorOpen:                c.doorOpen,
		DoorPreviewActive:       c.doorPreviewActive,
		StateLabel:              c.stateLabel,
		SetpointC:               c.setpointC,
		ProcessValueC:           c.processValueC,
		FilteredPVC:             c.filteredPVC,
		HasFilteredPV:           c.hasFilteredPV,
		PIDOutput:               c.pidOutput,
		SetpointLockedByProfile: c.setpointLockedByProfile,
		InputFilterMs:           c.inputFilterMs,
		InputsUsed:              inputs,
		RelaysPWM:               relaysPWM,
		RelaysPWMAccumulators:   acc,
		RelaysWhenRunning:       relaysWhenRunning,
		Door:                    c.door,
		DoorCurrentAngle:        c.doorCurrentAngle,
	}
}

// RunTick executes one control-loop iteration. It is idempotent and
// safe to miss; the integral leak and input filter smooth jitter from
// a skipped tick. Per spec.md §5, the controller mutex is never held
// while calling into the hardware port.
func (c *Controller) RunTick() error {
	c.mu.Lock()
	inputs := append([]int(nil), c.inputsUsed...)
	filterMs := c.inputFilterMs
	hasPrev := c.hasFilteredPV
	prevPV := c.filteredPVC
	c.mu.Unlock()

	avg, count := c.sampleAverage(inputs)

	if count == 0 {
		c.mu.Lock()
		c.alarming = true
		c.stateLabel = StateSensorError
		wasRunning := c.running
		c.running = false
		c.mu.Unlock()
		if wasRunning {
			c.stopActuators()
		}
		return apperr.New(apperr.SensorError, "no valid channel this tick")
	}

	var pv float64
	if !hasPrev {
		pv = avg
	} else {
		alpha := tickPeriodS / (filterMs/1000.0 + tickPeriodS)
		pv = alpha*avg + (1-alpha)*prevPV
	}

	tripped := pv < MinPVC || pv > MaxPVC

	c.mu.Lock()
	c.processValueC = avg
	c.filteredPVC = pv
	c.hasFilteredPV = true

	var needStop bool
	if tripped {
		if !c.alarming && c.running {
			needStop = true
		}
		c.alarming = true
		c.stateLabel = StateAlarming
	} else if c.alarming && !c.running {
		c.alarming = false
		c.stateLabel = StateIdle
	}

	running := c.running
	sp := c.setpointC
	c.mu.Unlock()

	if needStop {
		c.stopActuators()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		running = false
	}

	if running {
		out := c.pid.Calculate(sp, pv)
		c.mu.Lock()
		c.pidOutput = out
		c.mu.Unlock()
		c.dispatchRunning(out, pv)
	} else {
		c.dispatchIdle()
	}

	return nil
}

// sampleAverage reads every configured channel (hardware I/O, no lock
// held) and returns the mean of the valid readings and how many were
// valid. SENSOR_ERROR readings and read errors are excluded.
func (c *Controller) sampleAverage(inputs []int) (float64, int) {
	var sum float64
	count := 0
	for _, ch := range inputs {
		v, err := c.hal.ReadThermocouple(ch)
		if err != nil {
			continue
		}
		if v == hal.SensorError {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0, 0
	}
	return sum / float64(count), count
}
