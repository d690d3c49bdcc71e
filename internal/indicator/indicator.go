// Package indicator drives the onboard LED. In steady state the LED
// mirrors the sampled status lamp so the device visibly tracks the gate;
// short flash codes overlay operational events.
package indicator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/crossley/gatewatch/internal/gpio"
)

// Pattern identifies a flash code.
type Pattern int

const (
	// PatternConnecting: four flashes, played per connectivity attempt.
	PatternConnecting Pattern = iota
	// PatternConnected: two flashes, played once connectivity is reached.
	PatternConnected
	// PatternNotified: three flashes, played after a notification went out.
	PatternNotified
)

// defaultStep is the flash on/off time.
const defaultStep = 200 * time.Millisecond

func (p Pattern) pulses() int {
	switch p {
	case PatternConnecting:
		return 4
	case PatternConnected:
		return 2
	case PatternNotified:
		return 3
	}
	return 0
}

// Driver owns the LED from its own goroutine. Mirror and Flash are
// fire-and-forget: they never block the caller, dropping updates when the
// driver is busy playing a pattern.
type Driver struct {
	led    gpio.LED
	logger *zap.Logger
	step   time.Duration
	mirror chan bool
	flash  chan Pattern
}

// New creates a Driver for the given LED.
func New(led gpio.LED, logger *zap.Logger) *Driver {
	return &Driver{
		led:    led,
		logger: logger,
		step:   defaultStep,
		mirror: make(chan bool, 1),
		flash:  make(chan Pattern, 4),
	}
}

// Mirror updates the steady-state LED level. Lossy: a dropped update is
// replaced by the next sample a tick later.
func (d *Driver) Mirror(on bool) {
	select {
	case d.mirror <- on:
	default:
	}
}

// Flash queues a flash code. Lossy when codes pile up faster than they
// can play.
func (d *Driver) Flash(p Pattern) {
	select {
	case d.flash <- p:
	default:
	}
}

// Run plays mirror updates and flash codes until ctx is cancelled, then
// leaves the LED off.
func (d *Driver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if err := d.led.Set(false); err != nil {
				d.logger.Debug("indicator_error", zap.Error(err))
			}
			return
		case p := <-d.flash:
			d.play(p)
		case on := <-d.mirror:
			if err := d.led.Set(on); err != nil {
				d.logger.Debug("indicator_error", zap.Error(err))
			}
		}
	}
}

func (d *Driver) play(p Pattern) {
	for i := 0; i < p.pulses(); i++ {
		if err := d.led.Set(true); err != nil {
			d.logger.Warn("indicator_error", zap.Error(err))
			return
		}
		time.Sleep(d.step)
		if err := d.led.Set(false); err != nil {
			d.logger.Warn("indicator_error", zap.Error(err))
			return
		}
		time.Sleep(d.step)
	}
}
