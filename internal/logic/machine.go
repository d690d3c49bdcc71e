package logic

import "time"

// Machine tracks the accepted gate state across windows. A transition into
// a state whose policy has Confirm set must be classified in two
// consecutive windows before it is accepted; a single matching window could
// be a sampling artifact. Unknown windows never change the accepted state
// and cancel any pending confirmation.
type Machine struct {
	policies      PolicyTable
	current       GateState
	pending       GateState
	startTime     time.Time
	counts        EventCounts
	lastHeartbeat time.Time
}

// NewMachine creates a machine with Closed as the initial accepted state,
// the natural quiescent state of a gate. The startTime is used for uptime
// in heartbeat events.
func NewMachine(policies PolicyTable, startTime time.Time) *Machine {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Machine{
		policies:      policies,
		current:       StateClosed,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Observe feeds one window's classified state into the machine and returns
// the accepted state afterwards. changed is true when this window completed
// a transition.
func (m *Machine) Observe(window GateState) (current GateState, changed bool) {
	m.counts.Windows++

	if window == StateUnknown {
		m.counts.Unknown++
		m.pending = ""
		return m.current, false
	}

	if window == m.current {
		m.pending = ""
		return m.current, false
	}

	if m.policies[window].Confirm && m.pending != window {
		m.pending = window
		return m.current, false
	}

	m.pending = ""
	m.current = window
	m.counts.Transitions++
	return m.current, true
}

// Current returns the accepted state.
func (m *Machine) Current() GateState {
	return m.current
}

// Pending returns the state awaiting a confirming window, or "" when no
// confirmation is in progress.
func (m *Machine) Pending() GateState {
	return m.pending
}

// Counts returns activity totals since startup.
func (m *Machine) Counts() EventCounts {
	return m.counts
}

// CountNotification records that the throttle emitted a request.
func (m *Machine) CountNotification() {
	m.counts.Notifications++
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since
// the last heartbeat (or startup). Returns nil if the interval has not
// elapsed, or if interval is <= 0 (disabled).
func (m *Machine) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(m.lastHeartbeat) < interval {
		return nil
	}

	m.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(m.startTime),
		State:     m.current,
		Counts:    m.counts,
	}
}
