// Package gpio provides GPIO access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

// Reader reads the gate status lamp input.
type Reader interface {
	// Read returns the logical state of the status lamp input.
	// true = lamp illuminated.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// LED drives the onboard indicator output.
type LED interface {
	// Set switches the indicator on or off.
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinStatus = 25 // optocoupler from the gate status lamp
	PinLED    = 2  // onboard indicator
)

// Chip is the GPIO character device the lines are requested from.
const Chip = "gpiochip0"
