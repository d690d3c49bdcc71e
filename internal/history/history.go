// Package history records gate activity to InfluxDB for later charting.
// Recording is best effort: writes are batched and asynchronous, and a
// failed write never disturbs monitoring.
package history

import (
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/crossley/gatewatch/internal/config"
	"github.com/crossley/gatewatch/internal/logic"
)

// Measurement names.
const (
	MeasurementWindow       = "gate_window"
	MeasurementEvent        = "gate_event"
	MeasurementNotification = "gate_notification"
)

// Recorder writes gate activity points to an InfluxDB bucket. A nil
// Recorder is valid and records nothing, so callers do not have to guard
// every call site when history is not configured.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *zap.Logger
}

// NewRecorder creates a Recorder for the configured InfluxDB instance.
// Returns nil when no URL is configured.
func NewRecorder(cfg config.InfluxConfig, logger *zap.Logger) *Recorder {
	if !cfg.Enabled() {
		return nil
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(cfg.Batch).
		SetFlushInterval(uint(cfg.Flush.Milliseconds()))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token.Unmask(), opts)
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	r := &Recorder{
		client:   client,
		writeAPI: writeAPI,
		logger:   logger,
	}

	// Async writes report failures on a channel rather than a return value.
	go func() {
		for err := range writeAPI.Errors() {
			if err != nil {
				logger.Warn("influx_write_error", zap.Error(err))
			}
		}
	}()

	return r
}

// RecordWindow records the classification result of one observation window.
func (r *Recorder) RecordWindow(ts time.Time, state logic.GateState, stats logic.WindowStats) {
	if r == nil {
		return
	}
	r.writeAPI.WritePoint(windowPoint(ts, state, stats))
}

// RecordEvent records an accepted state transition.
func (r *Recorder) RecordEvent(event logic.Event) {
	if r == nil {
		return
	}
	r.writeAPI.WritePoint(eventPoint(event))
}

// RecordNotification records a notification passed on for delivery.
func (r *Recorder) RecordNotification(req logic.Request) {
	if r == nil {
		return
	}
	r.writeAPI.WritePoint(notificationPoint(req))
}

// Close flushes pending points and releases the client.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.writeAPI.Flush()
	r.client.Close()
	return nil
}

func windowPoint(ts time.Time, state logic.GateState, stats logic.WindowStats) *write.Point {
	tags := map[string]string{
		"state": string(state),
	}
	fields := map[string]interface{}{
		"illuminated": stats.Illuminated,
		"edges":       stats.Edges,
	}
	return influxdb2.NewPoint(MeasurementWindow, tags, fields, ts)
}

func eventPoint(event logic.Event) *write.Point {
	tags := map[string]string{
		"state":    string(event.State),
		"previous": string(event.Previous),
	}
	fields := map[string]interface{}{
		"illuminated": event.Stats.Illuminated,
		"edges":       event.Stats.Edges,
		"count":       int64(1),
	}
	return influxdb2.NewPoint(MeasurementEvent, tags, fields, event.Timestamp)
}

func notificationPoint(req logic.Request) *write.Point {
	tags := map[string]string{
		"state":  string(req.State),
		"repeat": strconv.FormatBool(req.Repeat),
	}
	fields := map[string]interface{}{
		"count": int64(1),
	}
	return influxdb2.NewPoint(MeasurementNotification, tags, fields, req.Timestamp)
}
