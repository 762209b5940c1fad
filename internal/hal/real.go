//go:build linux

package hal

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// ThermocoupleReader is the injected SPI-side port for analog channel
// reads; out of this module's scope beyond this function type (spec.md
// §1 names the SPI driver an external collaborator).
type ThermocoupleReader func(index int) (float64, error)

// ServoDriver is the injected MCPWM-side port for the vent servo; out
// of this module's scope beyond this function type.
type ServoDriver interface {
	SetAngle(deg float64) error
	GetAngle() (float64, error)
}

// RealHAL drives up to 8 relay channels over a Linux GPIO character
// device chip, and delegates thermocouple reads and servo control to
// injected collaborators that own the SPI/MCPWM peripherals.
type RealHAL struct {
	chip       *gpiocdev.Chip
	relayLines map[int]*gpiocdev.Line
	relayState map[int]bool

	readThermocouple ThermocoupleReader
	servo            ServoDriver
}

// NewRealHAL opens the GPIO chip and requests output lines for each BCM
// pin in relayPins (keyed by relay index), matching the pull-down
// defaults used for digital I/O on Raspberry Pi targets.
func NewRealHAL(chipName string, relayPins map[int]int, reader ThermocoupleReader, servo ServoDriver) (*RealHAL, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("hal: open gpio chip: %w", err)
	}

	h := &RealHAL{
		chip:             chip,
		relayLines:       make(map[int]*gpiocdev.Line, len(relayPins)),
		relayState:       make(map[int]bool, len(relayPins)),
		readThermocouple: reader,
		servo:            servo,
	}

	for idx, pin := range relayPins {
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("hal: request relay %d pin %d: %w", idx, pin, err)
		}
		h.relayLines[idx] = line
	}

	return h, nil
}

// ReadThermocouple delegates to the injected SPI reader.
func (h *RealHAL) ReadThermocouple(index int) (float64, error) {
	if h.readThermocouple == nil {
		return SensorError, fmt.Errorf("hal: no thermocouple reader configured")
	}
	return h.readThermocouple(index)
}

// SetRelayState drives the GPIO line for relay index.
func (h *RealHAL) SetRelayState(index int, on bool) error {
	line, ok := h.relayLines[index]
	if !ok {
		return ErrChannelRange("relay", index)
	}
	v := 0
	if on {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("hal: set relay %d: %w", index, err)
	}
	h.relayState[index] = on
	return nil
}

// GetRelayState returns the last commanded relay state.
func (h *RealHAL) GetRelayState(index int) (bool, error) {
	on, ok := h.relayState[index]
	if !ok {
		return false, ErrChannelRange("relay", index)
	}
	return on, nil
}

// SetServoAngle delegates to the injected MCPWM servo driver.
func (h *RealHAL) SetServoAngle(deg float64) error {
	if h.servo == nil {
		return fmt.Errorf("hal: no servo driver configured")
	}
	return h.servo.SetAngle(deg)
}

// GetServoAngle delegates to the injected MCPWM servo driver.
func (h *RealHAL) GetServoAngle() (float64, error) {
	if h.servo == nil {
		return 0, fmt.Errorf("hal: no servo driver configured")
	}
	return h.servo.GetAngle()
}

// Close releases all requested GPIO lines and the chip handle.
func (h *RealHAL) Close() error {
	var firstErr error
	for _, line := range h.relayLines {
		if err := line.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if h.chip != nil {
		if err := h.chip.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
