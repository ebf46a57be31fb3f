// Package gpio provides GPIO output driving with hardware abstraction.
// The real implementations use the Linux GPIO character device or periph.io.
// The fake implementation records every call and allows testing without hardware.
package gpio

// Level is the physical signal level of an output pin.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

// String returns "LOW" or "HIGH".
func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// Driver drives GPIO output lines addressed by BCM number.
type Driver interface {
	// ConfigureOutput prepares the pin to be written as a digital output.
	// Fails for pins the board does not expose or that are already in use.
	ConfigureOutput(pin int) error

	// WriteLevel drives a configured pin to the given physical level.
	WriteLevel(pin int, level Level) error

	// Release frees every pin configured through this driver.
	Release() error
}

// Default relay wiring (BCM numbering).
var DefaultPins = []int{17, 27, 22, 23}

// DefaultChip is the GPIO character device used by the Raspberry Pi header.
const DefaultChip = "gpiochip0"
