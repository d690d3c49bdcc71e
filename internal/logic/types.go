// Package logic contains pure business logic for gate state monitoring.
// This package has NO external dependencies (no GPIO, HTTP, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// GateState represents the classified state of the gate motor, derived from
// the blink pattern of its status lamp.
type GateState string

const (
	StateClosed     GateState = "CLOSED"
	StateOpening    GateState = "OPENING"
	StateOpen       GateState = "OPEN"
	StateNoMains    GateState = "NO_MAINS"
	StateBatteryLow GateState = "BATTERY_LOW"
	StateUnknown    GateState = "UNKNOWN"
)

// States lists the classifiable gate states in display order.
// StateUnknown is excluded; it is the fallback, not a pattern.
func States() []GateState {
	return []GateState{StateClosed, StateOpening, StateOpen, StateNoMains, StateBatteryLow}
}

// WindowStats summarizes one observation window of the status lamp.
type WindowStats struct {
	// Number of samples in the window where the lamp was illuminated.
	Illuminated int
	// Number of dark-to-illuminated transitions observed in the window.
	Edges int
}

// Event represents an accepted state transition to be published.
type Event struct {
	Timestamp time.Time
	State     GateState
	Previous  GateState
	Stats     WindowStats
}

// Request is a notification approved by the throttle policy for delivery.
type Request struct {
	Timestamp time.Time
	State     GateState
	Message   string
	// Repeat is true when the request re-reports a persisting state rather
	// than a fresh transition.
	Repeat bool
}

// Policy describes how one gate state is reported.
type Policy struct {
	// Notify controls whether the state may produce notifications at all.
	Notify bool
	// RepeatEvery is the minimum interval between notifications while the
	// state persists. Zero means notify on entry only.
	RepeatEvery time.Duration
	// Confirm requires the state to be classified in two consecutive
	// windows before it is accepted as current.
	Confirm bool
	// Message is sent when the state is first entered.
	Message string
	// RepeatMessage is sent while the state persists. Empty falls back
	// to Message.
	RepeatMessage string
}

// PolicyTable maps each gate state to its notification policy.
// States absent from the table never notify and never require confirmation.
type PolicyTable map[GateState]Policy

// DefaultPolicies returns the built-in policy table. Closed and Opening are
// routine movements and stay quiet. Open nags every five minutes until the
// gate is shut. Power trouble nags every half hour.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		StateClosed: {
			Notify:  false,
			Confirm: true,
			Message: "Gate closed",
		},
		StateOpening: {
			Notify:  false,
			Message: "Gate opening",
		},
		StateOpen: {
			Notify:        true,
			RepeatEvery:   5 * time.Minute,
			Message:       "Gate OPEN",
			RepeatMessage: "Gate still OPEN",
		},
		StateNoMains: {
			Notify:        true,
			RepeatEvery:   30 * time.Minute,
			Confirm:       true,
			Message:       "Gate has an AC power failure",
			RepeatMessage: "Gate still has an AC power failure",
		},
		StateBatteryLow: {
			Notify:        true,
			RepeatEvery:   30 * time.Minute,
			Confirm:       true,
			Message:       "Gate has a low backup battery",
			RepeatMessage: "Gate still has a low backup battery",
		},
	}
}

// ThrottleRecord tracks, per state, when a notification was last sent.
// Lifetime is the process lifetime; it is owned by the caller of Decide and
// never hidden behind a package variable.
type ThrottleRecord struct {
	lastSent map[GateState]time.Time
}

// NewThrottleRecord creates an empty throttle record.
func NewThrottleRecord() *ThrottleRecord {
	return &ThrottleRecord{lastSent: make(map[GateState]time.Time)}
}

// LastSent returns when state last produced a notification, if it ever has.
func (r *ThrottleRecord) LastSent(state GateState) (time.Time, bool) {
	t, ok := r.lastSent[state]
	return t, ok
}

func (r *ThrottleRecord) stamp(state GateState, now time.Time) {
	r.lastSent[state] = now
}

// EventCounts tracks activity totals since startup.
type EventCounts struct {
	// Windows is the number of completed observation windows.
	Windows int
	// Transitions is the number of accepted state changes.
	Transitions int
	// Notifications is the number of requests emitted by the throttle.
	Notifications int
	// Unknown is the number of windows that matched no signature.
	Unknown int
}

// HeartbeatData contains information for a periodic heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	State     GateState
	Counts    EventCounts
}
