package monitor

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/crossley/gatewatch/internal/gpio"
	"github.com/crossley/gatewatch/internal/indicator"
	"github.com/crossley/gatewatch/internal/logic"
	"github.com/crossley/gatewatch/internal/metrics"
	"github.com/crossley/gatewatch/internal/mqtt"
	"github.com/crossley/gatewatch/internal/notify"
	"github.com/crossley/gatewatch/internal/status"
)

// fakeClock advances by a fixed step on every Now call. The monitor reads
// the clock once at construction and once per window boundary, so a 5s step
// makes consecutive windows land 5s apart, matching the real cadence.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newFakeClock(step time.Duration) *fakeClock {
	return &fakeClock{
		now:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		step: step,
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func closedWindow() []bool {
	return make([]bool, logic.DefaultWindowSamples)
}

func openWindow() []bool {
	w := make([]bool, logic.DefaultWindowSamples)
	for i := range w {
		w[i] = true
	}
	return w
}

// unmatchedWindow builds a pattern outside every signature band:
// one short pulse per second gives 10 illuminated samples but 5 edges.
func unmatchedWindow() []bool {
	w := make([]bool, logic.DefaultWindowSamples)
	for i := 0; i < len(w); i += 10 {
		w[i] = true
		w[i+1] = true
	}
	return w
}

type harness struct {
	reader    *gpio.FakeReader
	publisher *mqtt.FakePublisher
	notifier  *notify.FakeNotifier
	tracker   *status.Tracker
	led       *gpio.FakeLED
	mon       *Monitor

	tick   chan time.Time
	sig    chan os.Signal
	done   chan struct{}
	cancel context.CancelFunc
}

func newHarness(t *testing.T, samples []bool, cfg Config) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	logger := zap.NewNop()
	clk := newFakeClock(5 * time.Second)

	h := &harness{
		reader:    gpio.NewFakeReader(samples),
		publisher: mqtt.NewFakePublisher(),
		notifier:  notify.NewFakeNotifier(),
		tracker:   status.NewTracker(clk.now, status.Config{}),
		led:       gpio.NewFakeLED(),
		tick:      make(chan time.Time),
		sig:       make(chan os.Signal, 1),
		done:      make(chan struct{}),
		cancel:    cancel,
	}

	dispatcher := notify.NewDispatcher(h.notifier, logger, "Gate monitor", 16, time.Second)
	go dispatcher.Run(ctx)

	driver := indicator.New(h.led, logger)
	go driver.Run(ctx)

	h.mon = New(Deps{
		Reader:     h.reader,
		Publisher:  h.publisher,
		MQTTStatus: h.publisher,
		Dispatcher: dispatcher,
		Tracker:    h.tracker,
		Metrics:    metrics.New(),
		Indicator:  driver,
		Logger:     logger,
		Now:        clk.Now,
	}, cfg)

	go func() {
		defer close(h.done)
		if err := h.mon.Run(h.tick, h.sig); err != nil {
			t.Errorf("monitor run: %v", err)
		}
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		default:
			h.stop(t)
		}
	})

	return h
}

func (h *harness) feed(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case h.tick <- time.Time{}:
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d not consumed", i)
		}
	}
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.sig <- syscall.SIGTERM
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

// waitFor polls cond until it holds or the deadline expires. The monitor
// may still be processing the last tick when feed returns.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestOpenTransitionPublishesAndNotifies(t *testing.T) {
	samples := append(closedWindow(), openWindow()...)
	h := newHarness(t, samples, Config{})

	h.feed(t, len(samples))
	waitFor(t, func() bool { return len(h.publisher.EventList()) == 1 }, "no event published")
	if !h.notifier.WaitForSends(1, 2*time.Second) {
		t.Fatal("no notification delivered")
	}

	events := h.publisher.EventList()
	if events[0].State != logic.StateOpen || events[0].Previous != logic.StateClosed {
		t.Errorf("event: got %s<-%s, want OPEN<-CLOSED", events[0].State, events[0].Previous)
	}
	if events[0].Stats.Illuminated != 50 {
		t.Errorf("event illuminated: got %d, want 50", events[0].Stats.Illuminated)
	}

	sends := h.notifier.Sends()
	if sends[0].Text != "Gate OPEN" {
		t.Errorf("message: got %q, want %q", sends[0].Text, "Gate OPEN")
	}
	if sends[0].Title != "Gate monitor" {
		t.Errorf("title: got %q, want %q", sends[0].Title, "Gate monitor")
	}

	h.stop(t)

	system := h.publisher.SystemEventList()
	last := system[len(system)-1]
	if last.Event != "SHUTDOWN" || last.Reason != "SIGTERM" {
		t.Errorf("final system event: got %s/%s, want SHUTDOWN/SIGTERM", last.Event, last.Reason)
	}
	if !last.Retained {
		t.Error("shutdown event should be retained")
	}
}

func TestClosedWindowsStayQuiet(t *testing.T) {
	samples := append(closedWindow(), closedWindow()...)
	h := newHarness(t, samples, Config{})

	h.feed(t, len(samples))
	waitFor(t, func() bool { return h.tracker.Snapshot().Counts.Windows == 2 }, "windows not processed")

	if got := len(h.publisher.EventList()); got != 0 {
		t.Errorf("expected no events, got %d", got)
	}
	if got := len(h.notifier.Sends()); got != 0 {
		t.Errorf("expected no notifications, got %d", got)
	}
	snap := h.tracker.Snapshot()
	if snap.State != logic.StateClosed {
		t.Errorf("state: got %s, want CLOSED", snap.State)
	}
}

func TestUnmatchedWindowClassifiesUnknown(t *testing.T) {
	h := newHarness(t, unmatchedWindow(), Config{})

	h.feed(t, logic.DefaultWindowSamples)
	waitFor(t, func() bool { return h.tracker.Snapshot().Counts.Windows == 1 }, "window not processed")

	snap := h.tracker.Snapshot()
	if snap.Counts.Unknown != 1 {
		t.Errorf("unknown count: got %d, want 1", snap.Counts.Unknown)
	}
	if snap.State != logic.StateClosed {
		t.Errorf("accepted state: got %s, want CLOSED", snap.State)
	}
	if snap.LastClassified != logic.StateUnknown {
		t.Errorf("classified: got %s, want UNKNOWN", snap.LastClassified)
	}
	if got := len(h.notifier.Sends()); got != 0 {
		t.Errorf("Unknown must never notify, got %d sends", got)
	}
}

func TestReadErrorSkipsTick(t *testing.T) {
	h := newHarness(t, nil, Config{})
	h.reader.ReadError = errors.New("line gone")

	h.feed(t, logic.DefaultWindowSamples)
	h.stop(t)

	snap := h.tracker.Snapshot()
	if snap.Observed {
		t.Error("no window should complete when every read fails")
	}
	if snap.Counts.Windows != 0 {
		t.Errorf("windows: got %d, want 0", snap.Counts.Windows)
	}
}

func TestHeartbeatPublished(t *testing.T) {
	h := newHarness(t, closedWindow(), Config{Heartbeat: 5 * time.Second})

	h.feed(t, logic.DefaultWindowSamples)
	waitFor(t, func() bool {
		for _, ev := range h.publisher.SystemEventList() {
			if ev.Event == "HEARTBEAT" {
				return true
			}
		}
		return false
	}, "no heartbeat published")

	for _, ev := range h.publisher.SystemEventList() {
		if ev.Event != "HEARTBEAT" {
			continue
		}
		if ev.Heartbeat == nil {
			t.Fatal("heartbeat event without heartbeat info")
		}
		if ev.Heartbeat.State != "CLOSED" {
			t.Errorf("heartbeat state: got %s, want CLOSED", ev.Heartbeat.State)
		}
		if ev.Heartbeat.Counts.Windows != 1 {
			t.Errorf("heartbeat windows: got %d, want 1", ev.Heartbeat.Counts.Windows)
		}
	}
}

func TestIndicatorMirrorsLamp(t *testing.T) {
	h := newHarness(t, openWindow(), Config{})

	h.feed(t, 10)
	waitFor(t, h.led.Level, "indicator never mirrored the lit lamp")
}
