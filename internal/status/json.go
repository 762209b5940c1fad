package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Running       bool        `json:"running"`
	Alarming      bool        `json:"alarming"`
	StateLabel    string      `json:"state_label"`
	SetpointC     float64     `json:"setpoint_c"`
	ProcessValueC float64     `json:"process_value_c"`
	PIDOutput     float64     `json:"pid_output"`
	DoorAngleDeg  float64     `json:"door_angle_deg"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	Telemetry     MQTTStatus  `json:"telemetry"`
	Profile       ProfileJSON `json:"profile"`
	Config        ConfigJSON  `json:"config"`
}

// MQTTStatus reports the telemetry broker connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ProfileJSON is the JSON representation of the active profile run.
type ProfileJSON struct {
	Running   bool   `json:"running"`
	Name      string `json:"name,omitempty"`
	Step      int    `json:"step,omitempty"`
	Total     int    `json:"total_steps,omitempty"`
	EndReason string `json:"last_end_reason,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickPeriodMs int64  `json:"tick_period_ms"`
	Broker       string `json:"broker"`
	HTTPAddr     string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	return StatusInner{
		Running:       snap.Running,
		Alarming:      snap.Alarming,
		StateLabel:    snap.StateLabel,
		SetpointC:     snap.SetpointC,
		ProcessValueC: snap.ProcessValueC,
		PIDOutput:     snap.PIDOutput,
		DoorAngleDeg:  snap.DoorAngleDeg,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Telemetry:     MQTTStatus{Connected: snap.TelemetryConnected, Broker: snap.Config.Broker},
		Profile: ProfileJSON{
			Running:   snap.ProfileRunning,
			Name:      snap.ProfileName,
			Step:      snap.ProfileStep,
			Total:     snap.ProfileTotal,
			EndReason: snap.ProfileEndCause,
		},
		Config: ConfigJSON{
			TickPeriodMs: snap.Config.TickPeriodMs,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for a telemetry system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
