package notify

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/crossley/gatewatch/internal/logic"
)

// Dispatcher owns the queue between the sampling loop and the notification
// sender. Enqueue never blocks: a stalled or slow sender must not stall
// sampling, so when the queue is full the request is dropped and counted.
type Dispatcher struct {
	notifier Notifier
	logger   *zap.Logger
	title    string
	timeout  time.Duration
	queue    chan logic.Request
	dropped  atomic.Int64

	// OnResult, when set, is called from the dispatcher goroutine after
	// every delivery attempt, successful or not.
	OnResult func(req logic.Request, err error)
}

// NewDispatcher creates a dispatcher delivering through n. queueSize caps
// the requests waiting for delivery; timeout bounds one delivery attempt.
func NewDispatcher(n Notifier, logger *zap.Logger, title string, queueSize int, timeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 16
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		notifier: n,
		logger:   logger,
		title:    title,
		timeout:  timeout,
		queue:    make(chan logic.Request, queueSize),
	}
}

// Enqueue hands a request to the dispatcher without blocking. It reports
// whether the request was accepted.
func (d *Dispatcher) Enqueue(req logic.Request) bool {
	select {
	case d.queue <- req:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("notify_dropped",
			zap.String("state", string(req.State)),
			zap.String("message", req.Message),
			zap.Int("queue_len", len(d.queue)),
		)
		return false
	}
}

// Dropped returns how many requests were dropped on a full queue.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run delivers queued requests until ctx is cancelled. It is the only
// goroutine that touches the notifier.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if pending := len(d.queue); pending > 0 {
				d.logger.Warn("dispatcher_stopped", zap.Int("pending", pending))
			}
			return
		case req := <-d.queue:
			d.deliver(ctx, req)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, req logic.Request) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	err := d.notifier.Send(sendCtx, d.title, req.Message)
	cancel()

	if err != nil {
		// No retry: the throttle stamp stands and the state will
		// re-notify on its repeat interval if it persists.
		d.logger.Error("notify_failed",
			zap.String("state", string(req.State)),
			zap.String("message", req.Message),
			zap.Bool("repeat", req.Repeat),
			zap.Error(err),
		)
	} else {
		d.logger.Info("notify_sent",
			zap.String("state", string(req.State)),
			zap.String("message", req.Message),
			zap.Bool("repeat", req.Repeat),
		)
	}

	if d.OnResult != nil {
		d.OnResult(req, err)
	}
}
