package logic

import (
	"testing"
	"time"
)

// pipeline drives raw lamp samples through the sampler, classifier,
// confirmation machine and throttle, collecting emitted requests. It mirrors
// the per-tick work of the monitor loop without any I/O.
type pipeline struct {
	sampler  *Sampler
	class    *Classifier
	machine  *Machine
	decider  *Decider
	rec      *ThrottleRecord
	now      time.Time
	tick     time.Duration
	previous GateState
	requests []*Request
}

func newPipeline(t *testing.T, policies PolicyTable) *pipeline {
	t.Helper()
	start := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	return &pipeline{
		sampler:  NewSampler(DefaultWindowSamples),
		class:    NewClassifier(nil),
		machine:  NewMachine(policies, start),
		decider:  NewDecider(policies),
		rec:      NewThrottleRecord(),
		now:      start,
		tick:     100 * time.Millisecond,
		previous: StateClosed,
	}
}

func (p *pipeline) feed(samples []bool) {
	for _, on := range samples {
		p.now = p.now.Add(p.tick)
		stats, done := p.sampler.Add(on)
		if !done {
			continue
		}
		current, _ := p.machine.Observe(p.class.Classify(stats))
		if req := p.decider.Decide(p.previous, current, p.now, p.rec); req != nil {
			p.requests = append(p.requests, req)
		}
		p.previous = current
	}
}

func (p *pipeline) feedWindows(n int, pattern []bool) {
	for i := 0; i < n; i++ {
		p.feed(pattern)
	}
}

func darkWindow() []bool {
	return make([]bool, DefaultWindowSamples)
}

func solidWindow() []bool {
	samples := make([]bool, DefaultWindowSamples)
	for i := range samples {
		samples[i] = true
	}
	return samples
}

// openingWindow is one long pulse in the middle of the window.
func openingWindow() []bool {
	samples := make([]bool, DefaultWindowSamples)
	for i := 15; i < 35; i++ {
		samples[i] = true
	}
	return samples
}

// mainsFailureWindow is a 2Hz flash at 10Hz sampling: on 3 of every 5.
func mainsFailureWindow() []bool {
	return flashSamples(DefaultWindowSamples, 5, 3)
}

func TestPipelineGateLeftOpen(t *testing.T) {
	policies := DefaultPolicies()
	p := newPipeline(t, policies)

	// Quiet morning, then the gate opens and stays open for twelve
	// minutes before closing again.
	p.feedWindows(3, darkWindow())
	p.feed(openingWindow())
	p.feedWindows(144, solidWindow())
	p.feedWindows(3, darkWindow())

	// One request when the gate opens, repeats at five and ten minutes,
	// nothing for opening or for closing again.
	if len(p.requests) != 3 {
		t.Fatalf("expected 3 requests, got %d: %+v", len(p.requests), p.requests)
	}
	if p.requests[0].Message != "Gate OPEN" || p.requests[0].Repeat {
		t.Errorf("unexpected first request %+v", p.requests[0])
	}
	for i, req := range p.requests[1:] {
		if req.Message != "Gate still OPEN" || !req.Repeat {
			t.Errorf("repeat %d: unexpected request %+v", i, req)
		}
	}
	if got := p.requests[1].Timestamp.Sub(p.requests[0].Timestamp); got != 5*time.Minute {
		t.Errorf("expected 5m between first request and repeat, got %v", got)
	}

	if p.machine.Current() != StateClosed {
		t.Errorf("expected gate closed at end of scenario, got %s", p.machine.Current())
	}
}

func TestPipelineMainsFailureConfirmedBeforeNotifying(t *testing.T) {
	p := newPipeline(t, DefaultPolicies())

	p.feedWindows(2, darkWindow())

	// A single flashing window is only a candidate.
	p.feed(mainsFailureWindow())
	if len(p.requests) != 0 {
		t.Fatalf("unconfirmed mains failure must not notify, got %+v", p.requests)
	}
	if p.machine.Current() != StateClosed {
		t.Errorf("expected CLOSED while unconfirmed, got %s", p.machine.Current())
	}

	// The second consecutive window confirms and notifies once.
	p.feed(mainsFailureWindow())
	if len(p.requests) != 1 {
		t.Fatalf("expected 1 request after confirmation, got %d", len(p.requests))
	}
	if p.requests[0].Message != "Gate has an AC power failure" {
		t.Errorf("unexpected message %q", p.requests[0].Message)
	}

	// Persisting for a few more windows stays quiet inside the interval.
	p.feedWindows(5, mainsFailureWindow())
	if len(p.requests) != 1 {
		t.Errorf("expected no repeats inside the interval, got %d", len(p.requests))
	}

	// Power restored: back to closed after confirmation, no new request.
	p.feedWindows(2, darkWindow())
	if p.machine.Current() != StateClosed {
		t.Errorf("expected CLOSED after recovery, got %s", p.machine.Current())
	}
	if len(p.requests) != 1 {
		t.Errorf("recovery should not notify, got %d requests", len(p.requests))
	}
}

func TestPipelineGlitchWindowDoesNotDisturbState(t *testing.T) {
	p := newPipeline(t, DefaultPolicies())

	p.feed(openingWindow())
	p.feedWindows(2, solidWindow())
	if p.machine.Current() != StateOpen {
		t.Fatalf("expected OPEN, got %s", p.machine.Current())
	}
	requestsBefore := len(p.requests)

	// A half-and-half window (mid-transition artifact) classifies as
	// Unknown and leaves both state and throttle untouched.
	glitch := make([]bool, DefaultWindowSamples)
	for i := 0; i < 25; i++ {
		glitch[i] = true
	}
	p.feed(glitch)

	if p.machine.Current() != StateOpen {
		t.Errorf("unknown window must not change state, got %s", p.machine.Current())
	}
	if len(p.requests) != requestsBefore {
		t.Errorf("unknown window must not notify, got %d new requests", len(p.requests)-requestsBefore)
	}
	if p.machine.Counts().Unknown != 1 {
		t.Errorf("expected 1 unknown window counted, got %d", p.machine.Counts().Unknown)
	}
}
