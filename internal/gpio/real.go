//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

// RealReader reads the status lamp input from actual hardware using the
// Linux GPIO character device.
type RealReader struct {
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	invert bool
}

// NewRealReader creates a GPIO reader for actual Raspberry Pi hardware.
// The line is requested as input with pull-down to match Pi boot defaults
// and the idle level of an optocoupler module. Set invert for boards whose
// output transistor pulls the line low while the lamp is illuminated.
func NewRealReader(pin int, invert bool) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request status pin %d: %w", pin, err)
	}

	return &RealReader{
		chip:   chip,
		line:   line,
		invert: invert,
	}, nil
}

// Read returns the logical state of the status lamp input.
func (r *RealReader) Read() (bool, error) {
	raw, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read status pin: %w", err)
	}

	on := raw != 0
	if r.invert {
		on = !on
	}
	return on, nil
}

// Close releases GPIO resources. The pin is reconfigured to input with
// pull-down (the Pi boot default) before closing so external hardware sees
// a consistent level across daemon restarts.
func (r *RealReader) Close() error {
	var err error

	if r.line != nil {
		if e := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); e != nil {
			err = multierr.Append(err, fmt.Errorf("reconfigure status pin: %w", e))
		}
		if e := r.line.Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("close status pin: %w", e))
		}
	}
	if r.chip != nil {
		if e := r.chip.Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("close chip: %w", e))
		}
	}

	return err
}

// RealLED drives the onboard indicator through the Linux GPIO character
// device.
type RealLED struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealLED creates an indicator output for actual Raspberry Pi hardware.
// The line starts low (indicator off).
func NewRealLED(pin int) (*RealLED, error) {
	chip, err := gpiocdev.NewChip(Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request led pin %d: %w", pin, err)
	}

	return &RealLED{
		chip: chip,
		line: line,
	}, nil
}

// Set switches the indicator on or off.
func (l *RealLED) Set(on bool) error {
	value := 0
	if on {
		value = 1
	}
	if err := l.line.SetValue(value); err != nil {
		return fmt.Errorf("set led pin: %w", err)
	}
	return nil
}

// Close switches the indicator off and releases GPIO resources.
func (l *RealLED) Close() error {
	var err error

	if l.line != nil {
		if e := l.line.SetValue(0); e != nil {
			err = multierr.Append(err, fmt.Errorf("clear led pin: %w", e))
		}
		if e := l.line.Reconfigure(gpiocdev.AsInput); e != nil {
			err = multierr.Append(err, fmt.Errorf("reconfigure led pin: %w", e))
		}
		if e := l.line.Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("close led pin: %w", e))
		}
	}
	if l.chip != nil {
		if e := l.chip.Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("close chip: %w", e))
		}
	}

	return err
}
