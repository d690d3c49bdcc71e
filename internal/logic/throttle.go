package logic

import "time"

// Decider applies the notification policy at each window boundary,
// suppressing repeat notifications for an unchanged state until the
// state's repeat interval elapses.
type Decider struct {
	policies PolicyTable
}

// NewDecider creates a Decider using the given policy table.
// A nil table falls back to DefaultPolicies.
func NewDecider(policies PolicyTable) *Decider {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Decider{policies: policies}
}

// Decide returns the notification to send for this window, or nil.
// previous and current are the accepted states before and after the
// window. rec is stamped whenever a request is returned; delivery failure
// downstream never rolls the stamp back (a request is attempted, not
// confirmed delivered).
//
// Rules, in order: Unknown never notifies. States with Notify unset never
// notify. A fresh transition into a notifying state always notifies. A
// persisting state notifies again only once RepeatEvery has elapsed since
// its last notification, and never when RepeatEvery is zero.
func (d *Decider) Decide(previous, current GateState, now time.Time, rec *ThrottleRecord) *Request {
	if current == StateUnknown {
		return nil
	}

	policy, ok := d.policies[current]
	if !ok || !policy.Notify {
		return nil
	}

	if current != previous {
		rec.stamp(current, now)
		return &Request{
			Timestamp: now,
			State:     current,
			Message:   policy.Message,
		}
	}

	if policy.RepeatEvery <= 0 {
		return nil
	}

	if last, ok := rec.LastSent(current); ok && now.Sub(last) < policy.RepeatEvery {
		return nil
	}

	rec.stamp(current, now)
	message := policy.RepeatMessage
	if message == "" {
		message = policy.Message
	}
	return &Request{
		Timestamp: now,
		State:     current,
		Message:   message,
		Repeat:    true,
	}
}
