// Package telemetry publishes Controller/ProfileEngine state and
// lifecycle events over MQTT, buffering messages across broker outages.
package telemetry

import (
	"encoding/json"
	"time"
)

// TopicSnapshot is where periodic controller/profile snapshots are published.
const TopicSnapshot = "reflowd/snapshot"

// TopicSystem is where process lifecycle events are published.
const TopicSystem = "reflowd/system"

// Publisher publishes reflow state to MQTT.
type Publisher interface {
	// PublishSnapshot sends a controller/profile snapshot.
	PublishSnapshot(snap SnapshotPayload) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error

	// IsConnected reports whether the broker connection is currently up.
	IsConnected() bool
}

// SystemEvent represents a process lifecycle event (startup, shutdown, alarm).
type SystemEvent struct {
	Timestamp time.Time
	Event     string // "STARTUP", "SHUTDOWN", "ALARM", "ALARM_CLEARED"
	Reason    string
}

// SnapshotPayload is the JSON envelope published on TopicSnapshot.
type SnapshotPayload struct {
	Reflow ReflowPayload `json:"reflow"`
}

// ReflowPayload mirrors the fields callers care about from
// controller.Snapshot and profile.Runtime without importing either
// package, keeping telemetry a leaf.
type ReflowPayload struct {
	Timestamp     string  `json:"timestamp"`
	Running       bool    `json:"running"`
	Alarming      bool    `json:"alarming"`
	StateLabel    string  `json:"state_label"`
	SetpointC     float64 `json:"setpoint_c"`
	ProcessValueC float64 `json:"process_value_c"`
	PIDOutput     float64 `json:"pid_output"`
	DoorAngleDeg  float64 `json:"door_angle_deg"`

	ProfileRunning  bool   `json:"profile_running,omitempty"`
	ProfileName     string `json:"profile_name,omitempty"`
	ProfileStep     int    `json:"profile_step,omitempty"`
	ProfileEndCause string `json:"profile_end_reason,omitempty"`
}

// SystemPayload is the JSON envelope published on TopicSystem.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

func FormatSnapshotPayload(p SnapshotPayload) ([]byte, error) {
	return json.Marshal(p)
}

func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
