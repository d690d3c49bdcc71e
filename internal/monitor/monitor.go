// Package monitor runs the sampling loop: it polls the status lamp at a
// fixed cadence, aggregates samples into windows, classifies each window
// and pushes the resulting work to the collaborators. The tick path never
// performs network I/O; notifications go through the dispatcher queue and
// MQTT publishes through an internal worker goroutine, so a slow broker or
// push endpoint can never stall sampling.
package monitor

import (
	"os"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/crossley/gatewatch/internal/gpio"
	"github.com/crossley/gatewatch/internal/history"
	"github.com/crossley/gatewatch/internal/indicator"
	"github.com/crossley/gatewatch/internal/logic"
	"github.com/crossley/gatewatch/internal/metrics"
	"github.com/crossley/gatewatch/internal/mqtt"
	"github.com/crossley/gatewatch/internal/notify"
	"github.com/crossley/gatewatch/internal/status"
)

// outQueueSize caps gate and system events waiting for the MQTT worker.
const outQueueSize = 64

// Deps are the collaborators the monitor drives. Reader, Dispatcher,
// Tracker, Metrics, Logger and Now are required. Publisher, MQTTStatus,
// Recorder and Indicator may be nil, disabling that output.
type Deps struct {
	Reader     gpio.Reader
	Publisher  mqtt.Publisher
	MQTTStatus mqtt.ConnectionStatus
	Dispatcher *notify.Dispatcher
	Recorder   *history.Recorder
	Tracker    *status.Tracker
	Metrics    *metrics.Metrics
	Indicator  *indicator.Driver
	Logger     *zap.Logger
	Now        func() time.Time
}

// Config holds the monitor's tuning: the window size, the heartbeat
// interval and the classification and notification tables.
type Config struct {
	WindowSamples int
	Heartbeat     time.Duration
	Signatures    []logic.Signature
	Policies      logic.PolicyTable
}

// outbound is one unit of MQTT work handed to the publish worker.
type outbound struct {
	event  *logic.Event
	system *mqtt.SystemEvent
}

// Monitor owns the sampling loop and the per-window pipeline.
type Monitor struct {
	deps Deps
	cfg  Config

	sampler    *logic.Sampler
	classifier *logic.Classifier
	machine    *logic.Machine
	decider    *logic.Decider
	throttle   *logic.ThrottleRecord

	out chan outbound
	wg  sync.WaitGroup
}

// New creates a Monitor. The machine starts in the Closed state with
// deps.Now() as its start time.
func New(deps Deps, cfg Config) *Monitor {
	return &Monitor{
		deps:       deps,
		cfg:        cfg,
		sampler:    logic.NewSampler(cfg.WindowSamples),
		classifier: logic.NewClassifier(cfg.Signatures),
		machine:    logic.NewMachine(cfg.Policies, deps.Now()),
		decider:    logic.NewDecider(cfg.Policies),
		throttle:   logic.NewThrottleRecord(),
		out:        make(chan outbound, outQueueSize),
	}
}

// Run samples on every tick until a signal arrives, then publishes a
// shutdown event and returns. Run may only be called once.
func (m *Monitor) Run(tick <-chan time.Time, sig <-chan os.Signal) error {
	if m.deps.Publisher != nil {
		m.wg.Add(1)
		go m.publishWorker()
	}

	for {
		select {
		case s := <-sig:
			m.shutdown(s)
			close(m.out)
			m.wg.Wait()
			return nil

		case <-tick:
			m.handleTick()
		}
	}
}

func (m *Monitor) handleTick() {
	on, err := m.deps.Reader.Read()
	if err != nil {
		// Skip the tick; the sampler keeps its in-progress window.
		m.deps.Logger.Warn("input_read_error", zap.Error(err))
		return
	}
	if m.deps.Indicator != nil {
		m.deps.Indicator.Mirror(on)
	}

	stats, done := m.sampler.Add(on)
	if !done {
		return
	}
	m.handleWindow(stats)
}

// handleWindow runs the per-window pipeline: classify, confirm, throttle.
func (m *Monitor) handleWindow(stats logic.WindowStats) {
	now := m.deps.Now()
	classified := m.classifier.Classify(stats)
	previous := m.machine.Current()
	current, changed := m.machine.Observe(classified)

	m.deps.Metrics.Windows.Inc()
	if classified == logic.StateUnknown {
		m.deps.Metrics.UnknownWindows.Inc()
		m.deps.Logger.Debug("window_unmatched",
			zap.Int("illuminated", stats.Illuminated),
			zap.Int("edges", stats.Edges))
	}
	m.deps.Recorder.RecordWindow(now, classified, stats)

	if changed {
		m.deps.Metrics.Transitions.Inc()
		event := logic.Event{
			Timestamp: now,
			State:     current,
			Previous:  previous,
			Stats:     stats,
		}
		m.deps.Logger.Info("state_changed",
			zap.String("state", string(current)),
			zap.String("previous", string(previous)),
			zap.Int("illuminated", stats.Illuminated),
			zap.Int("edges", stats.Edges))
		m.publish(outbound{event: &event})
		m.deps.Recorder.RecordEvent(event)
	}
	m.deps.Metrics.SetState(current)

	if req := m.decider.Decide(previous, current, now, m.throttle); req != nil {
		m.machine.CountNotification()
		m.deps.Recorder.RecordNotification(*req)
		if !m.deps.Dispatcher.Enqueue(*req) {
			m.deps.Metrics.NotifyDropped.Inc()
		}
	}

	if hb := m.machine.CheckHeartbeat(now, m.cfg.Heartbeat); hb != nil {
		event := mqtt.HeartbeatEvent(*hb)
		m.publish(outbound{system: &event})
	}

	m.syncStatus(current, classified, stats)
}

func (m *Monitor) syncStatus(current, classified logic.GateState, stats logic.WindowStats) {
	m.deps.Tracker.Update(current, m.machine.Pending(), classified, stats, m.machine.Counts())
	if m.deps.MQTTStatus != nil {
		connected := m.deps.MQTTStatus.IsConnected()
		m.deps.Tracker.SetMQTTConnected(connected)
		m.deps.Metrics.SetMQTTConnected(connected)
	}
}

func (m *Monitor) shutdown(s os.Signal) {
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}
	m.deps.Logger.Info("shutting_down", zap.String("signal", signalName))

	if m.deps.MQTTStatus != nil {
		m.deps.Tracker.SetMQTTConnected(m.deps.MQTTStatus.IsConnected())
	}
	snap := m.deps.Tracker.Snapshot()
	m.publish(outbound{system: &mqtt.SystemEvent{
		Timestamp:  m.deps.Now(),
		Event:      "SHUTDOWN",
		Reason:     signalName,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
	}})
}

// publish hands MQTT work to the worker without blocking the tick path.
func (m *Monitor) publish(msg outbound) {
	if m.deps.Publisher == nil {
		return
	}
	select {
	case m.out <- msg:
	default:
		m.deps.Logger.Warn("publish_queue_full", zap.Int("queue_len", len(m.out)))
	}
}

// publishWorker is the only goroutine that touches the MQTT publisher. The
// publisher's own ring buffer covers broker outages; this worker only keeps
// publish latency off the sampling tick.
func (m *Monitor) publishWorker() {
	defer m.wg.Done()
	for msg := range m.out {
		if msg.event != nil {
			if err := m.deps.Publisher.Publish(*msg.event); err != nil {
				m.deps.Logger.Warn("event_publish_failed",
					zap.String("state", string(msg.event.State)),
					zap.Error(err))
			}
		}
		if msg.system != nil {
			if err := m.deps.Publisher.PublishSystem(*msg.system); err != nil {
				m.deps.Logger.Warn("system_publish_failed",
					zap.String("event", msg.system.Event),
					zap.Error(err))
			} else if msg.system.Event == "SHUTDOWN" {
				m.deps.Logger.Info("shutdown_published")
			}
		}
	}
}
