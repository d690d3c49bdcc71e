// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/crossley/gatewatch/internal/logic"
)

// Topic is the MQTT topic for gate state events.
const Topic = "home/gate/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "home/gate/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a gate state event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	Config     *SystemConfig
	Heartbeat  *HeartbeatInfo
	Network    *NetworkInfo
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Gate GatePayload `json:"gate"`
}

// GatePayload contains the gate state event details.
type GatePayload struct {
	Timestamp string        `json:"timestamp"`
	State     string        `json:"state"`
	Previous  string        `json:"previous"`
	Window    WindowPayload `json:"window"`
}

// WindowPayload carries the observation window that produced the event.
type WindowPayload struct {
	Illuminated int `json:"illuminated"`
	Edges       int `json:"edges"`
}

// FormatPayload creates the JSON payload for a gate state event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Gate: GatePayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			State:     string(event.State),
			Previous:  string(event.Previous),
			Window: WindowPayload{
				Illuminated: event.Stats.Illuminated,
				Edges:       event.Stats.Edges,
			},
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	Reason    string         `json:"reason,omitempty"`
	Config    *SystemConfig  `json:"config,omitempty"`
	Heartbeat *HeartbeatInfo `json:"heartbeat,omitempty"`
	Network   *NetworkInfo   `json:"network,omitempty"`
}

// SystemConfig echoes the running configuration in STARTUP events.
type SystemConfig struct {
	SampleMs      int64  `json:"sample_ms"`
	WindowSamples int    `json:"window_samples"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	Broker        string `json:"broker"`
}

// HeartbeatInfo carries periodic liveness data in HEARTBEAT events.
type HeartbeatInfo struct {
	UptimeSeconds int64           `json:"uptime_seconds"`
	State         string          `json:"state"`
	Counts        HeartbeatCounts `json:"counts"`
}

// HeartbeatCounts summarizes activity since startup.
type HeartbeatCounts struct {
	Windows       int `json:"windows"`
	Transitions   int `json:"transitions"`
	Notifications int `json:"notifications"`
	Unknown       int `json:"unknown"`
}

// NetworkInfo describes the host's network connection.
type NetworkInfo struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway,omitempty"`
	WifiStatus string `json:"wifi_status,omitempty"`
	SSID       string `json:"ssid,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Config:    event.Config,
			Heartbeat: event.Heartbeat,
			Network:   event.Network,
		},
	}
	return json.Marshal(payload)
}

// HeartbeatEvent builds the HEARTBEAT system event from collected data.
func HeartbeatEvent(data logic.HeartbeatData) SystemEvent {
	return SystemEvent{
		Timestamp: data.Timestamp,
		Event:     "HEARTBEAT",
		Heartbeat: &HeartbeatInfo{
			UptimeSeconds: int64(data.Uptime.Seconds()),
			State:         string(data.State),
			Counts: HeartbeatCounts{
				Windows:       data.Counts.Windows,
				Transitions:   data.Counts.Transitions,
				Notifications: data.Counts.Notifications,
				Unknown:       data.Counts.Unknown,
			},
		},
	}
}
