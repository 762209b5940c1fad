//go:build !linux

package hal

import "errors"

// RealHAL is not available on non-Linux platforms.
type RealHAL struct{}

// NewRealHAL returns an error on non-Linux platforms.
func NewRealHAL(chipName string, relayPins map[int]int, reader interface{}, servo interface{}) (*RealHAL, error) {
	return nil, errors.New("hal: not supported on this platform (requires Linux)")
}

func (h *RealHAL) ReadThermocouple(index int) (float64, error) { return SensorError, errors.New("hal: not supported") }
func (h *RealHAL) SetRelayState(index int, on bool) error      { return errors.New("hal: not supported") }
func (h *RealHAL) GetRelayState(index int) (bool, error)       { return false, errors.New("hal: not supported") }
func (h *RealHAL) SetServoAngle(deg float64) error             { return errors.New("hal: not supported") }
func (h *RealHAL) GetServoAngle() (float64, error)             { return 0, errors.New("hal: not supported") }
func (h *RealHAL) Close() error                                { return nil }
