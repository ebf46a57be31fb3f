package gpio

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphDriver drives relay outputs through periph.io. Pins are looked up
// by their BCM name ("GPIO17").
type PeriphDriver struct {
	mu   sync.Mutex
	pins map[int]pgpio.PinIO
}

// NewPeriphDriver loads the periph host drivers.
func NewPeriphDriver() (*PeriphDriver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	return &PeriphDriver{pins: make(map[int]pgpio.PinIO)}, nil
}

// ConfigureOutput resolves the pin in the periph registry.
// The direction changes on the first write.
func (d *PeriphDriver) ConfigureOutput(pin int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if p == nil {
		return fmt.Errorf("pin %d: no such GPIO", pin)
	}
	d.pins[pin] = p
	return nil
}

// WriteLevel drives the pin to the given level.
func (d *PeriphDriver) WriteLevel(pin int, level Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pins[pin]
	if !ok {
		return fmt.Errorf("pin %d not configured as output", pin)
	}
	if err := p.Out(periphLevel(level)); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Release switches every pin back to input and halts it.
func (d *PeriphDriver) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	for pin, p := range d.pins {
		if ierr := p.In(pgpio.PullNoChange, pgpio.NoEdge); ierr != nil {
			err = multierr.Append(err, fmt.Errorf("reconfigure pin %d: %w", pin, ierr))
		}
		if herr := p.Halt(); herr != nil {
			err = multierr.Append(err, fmt.Errorf("halt pin %d: %w", pin, herr))
		}
	}
	d.pins = make(map[int]pgpio.PinIO)
	return err
}

func periphLevel(l Level) pgpio.Level {
	if l == High {
		return pgpio.High
	}
	return pgpio.Low
}
