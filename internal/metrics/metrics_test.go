package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/crossley/gatewatch/internal/logic"
)

func TestCountersStartAtZero(t *testing.T) {
	m := New()

	if got := testutil.ToFloat64(m.Windows); got != 0 {
		t.Errorf("windows: got %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.NotifySent); got != 0 {
		t.Errorf("notify sent: got %v, want 0", got)
	}
}

func TestCounterIncrement(t *testing.T) {
	m := New()

	m.Windows.Inc()
	m.Windows.Inc()
	m.UnknownWindows.Inc()

	if got := testutil.ToFloat64(m.Windows); got != 2 {
		t.Errorf("windows: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.UnknownWindows); got != 1 {
		t.Errorf("unknown windows: got %v, want 1", got)
	}
}

func TestSetStateIsOneHot(t *testing.T) {
	m := New()

	m.SetState(logic.StateOpen)

	for _, s := range logic.States() {
		got := testutil.ToFloat64(m.State.WithLabelValues(string(s)))
		want := 0.0
		if s == logic.StateOpen {
			want = 1
		}
		if got != want {
			t.Errorf("state %s: got %v, want %v", s, got, want)
		}
	}

	// Flipping states moves the 1.
	m.SetState(logic.StateClosed)
	if got := testutil.ToFloat64(m.State.WithLabelValues("OPEN")); got != 0 {
		t.Errorf("OPEN after flip: got %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.State.WithLabelValues("CLOSED")); got != 1 {
		t.Errorf("CLOSED after flip: got %v, want 1", got)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	m := New()

	m.SetMQTTConnected(true)
	if got := testutil.ToFloat64(m.MQTTConnected); got != 1 {
		t.Errorf("connected: got %v, want 1", got)
	}

	m.SetMQTTConnected(false)
	if got := testutil.ToFloat64(m.MQTTConnected); got != 0 {
		t.Errorf("disconnected: got %v, want 0", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.Windows.Inc()
	m.SetState(logic.StateClosed)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "gatewatch_windows_total 1") {
		t.Errorf("windows counter missing, body:\n%s", body)
	}
	if !strings.Contains(body, `gatewatch_state{state="CLOSED"} 1`) {
		t.Errorf("state gauge missing, body:\n%s", body)
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a := New()
	b := New()

	a.Windows.Inc()

	if got := testutil.ToFloat64(b.Windows); got != 0 {
		t.Errorf("second instance should be untouched, got %v", got)
	}
}
