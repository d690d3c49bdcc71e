// Package metrics exposes Prometheus instruments for the monitor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crossley/gatewatch/internal/logic"
)

// Metrics holds the instruments for one monitor instance. Each instance
// carries its own registry so tests do not fight over global state.
type Metrics struct {
	registry *prometheus.Registry

	// Windows counts completed observation windows.
	Windows prometheus.Counter
	// UnknownWindows counts windows that matched no signature.
	UnknownWindows prometheus.Counter
	// Transitions counts accepted state changes.
	Transitions prometheus.Counter
	// NotifySent counts notifications delivered to the sender.
	NotifySent prometheus.Counter
	// NotifyFailed counts notification deliveries that errored.
	NotifyFailed prometheus.Counter
	// NotifyDropped counts notifications discarded on a full queue.
	NotifyDropped prometheus.Counter
	// State is a one-hot gauge of the accepted gate state.
	State *prometheus.GaugeVec
	// MQTTConnected is 1 while the broker connection is up.
	MQTTConnected prometheus.Gauge
}

// New creates a Metrics with all instruments registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		Windows: factory.NewCounter(prometheus.CounterOpts{
			Name: "gatewatch_windows_total",
			Help: "Completed observation windows.",
		}),
		UnknownWindows: factory.NewCounter(prometheus.CounterOpts{
			Name: "gatewatch_unknown_windows_total",
			Help: "Observation windows that matched no signature.",
		}),
		Transitions: factory.NewCounter(prometheus.CounterOpts{
			Name: "gatewatch_transitions_total",
			Help: "Accepted gate state changes.",
		}),
		NotifySent: factory.NewCounter(prometheus.CounterOpts{
			Name: "gatewatch_notifications_sent_total",
			Help: "Notifications delivered to the sender.",
		}),
		NotifyFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "gatewatch_notifications_failed_total",
			Help: "Notification deliveries that errored.",
		}),
		NotifyDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "gatewatch_notifications_dropped_total",
			Help: "Notifications discarded because the queue was full.",
		}),
		State: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gatewatch_state",
			Help: "Accepted gate state, one-hot per state label.",
		}, []string{"state"}),
		MQTTConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gatewatch_mqtt_connected",
			Help: "1 while the MQTT broker connection is up.",
		}),
	}

	// Preset every state label so dashboards see explicit zeros.
	for _, s := range logic.States() {
		m.State.WithLabelValues(string(s)).Set(0)
	}

	return m
}

// SetState flips the one-hot state gauge to the given state.
func (m *Metrics) SetState(state logic.GateState) {
	for _, s := range logic.States() {
		v := 0.0
		if s == state {
			v = 1
		}
		m.State.WithLabelValues(string(s)).Set(v)
	}
}

// SetMQTTConnected records the broker connection state.
func (m *Metrics) SetMQTTConnected(connected bool) {
	if connected {
		m.MQTTConnected.Set(1)
	} else {
		m.MQTTConnected.Set(0)
	}
}

// Handler returns the HTTP handler serving this registry in Prometheus
// text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
