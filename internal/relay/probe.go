package relay

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/sweeney/relayd/internal/gpio"
)

// ProbeStep is one write of the polarity probe.
type ProbeStep struct {
	Level       gpio.Level
	Description string
}

// ProbeSteps is the wiring check sequence: each level alone, two full
// cycles, then back to LOW. Watching when the relay clicks tells whether
// the module is active-low.
var ProbeSteps = []ProbeStep{
	{gpio.Low, "test 1/4: LOW"},
	{gpio.High, "test 2/4: HIGH"},
	{gpio.Low, "test 3/4: cycle 1 LOW"},
	{gpio.High, "test 3/4: cycle 1 HIGH"},
	{gpio.Low, "test 3/4: cycle 2 LOW"},
	{gpio.High, "test 3/4: cycle 2 HIGH"},
	{gpio.Low, "test 4/4: back to LOW"},
}

// Probe drives pin through ProbeSteps, calling pause after each write so
// the operator can watch the relay, then releases the driver.
func Probe(driver gpio.Driver, pin int, pause func(step ProbeStep)) (err error) {
	defer func() {
		if rerr := driver.Release(); rerr != nil {
			err = multierr.Append(err, &DriverError{Op: "release", Err: rerr})
		}
	}()

	if pin <= 0 {
		return fmt.Errorf("relay: invalid pin %d", pin)
	}
	if err := driver.ConfigureOutput(pin); err != nil {
		return &DriverError{Op: "configure", Pin: pin, Err: err}
	}
	for _, step := range ProbeSteps {
		if err := driver.WriteLevel(pin, step.Level); err != nil {
			return &DriverError{Op: "write", Pin: pin, Err: err}
		}
		if pause != nil {
			pause(step)
		}
	}
	return nil
}
