//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

// consumer is the label shown by gpioinfo for lines held by this process.
const consumer = "relayd"

// CdevDriver drives relay outputs through the Linux GPIO character device.
type CdevDriver struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
	// output is set once a line has been switched to output mode.
	output map[int]bool
}

// NewCdevDriver opens the named GPIO chip (e.g. "gpiochip0").
func NewCdevDriver(chipName string) (*CdevDriver, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &CdevDriver{
		chip:   chip,
		lines:  make(map[int]*gpiocdev.Line),
		output: make(map[int]bool),
	}, nil
}

// ConfigureOutput requests the line without changing its direction or value.
// The first WriteLevel switches it to output at the requested level, so the
// pin never passes through a level nobody asked for.
func (d *CdevDriver) ConfigureOutput(pin int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.lines[pin]; ok {
		return nil
	}
	line, err := d.chip.RequestLine(pin, gpiocdev.AsIs)
	if err != nil {
		return fmt.Errorf("request pin %d: %w", pin, err)
	}
	d.lines[pin] = line
	return nil
}

// WriteLevel drives the pin to the given level.
func (d *CdevDriver) WriteLevel(pin int, level Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	line, ok := d.lines[pin]
	if !ok {
		return fmt.Errorf("pin %d not configured as output", pin)
	}
	if !d.output[pin] {
		if err := line.Reconfigure(gpiocdev.AsOutput(int(level))); err != nil {
			return fmt.Errorf("set pin %d as output: %w", pin, err)
		}
		d.output[pin] = true
		return nil
	}
	if err := line.SetValue(int(level)); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Release reconfigures every requested line as input, matching the Pi boot
// default, then closes the lines and the chip.
func (d *CdevDriver) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	for pin, line := range d.lines {
		if rerr := line.Reconfigure(gpiocdev.AsInput); rerr != nil {
			err = multierr.Append(err, fmt.Errorf("reconfigure pin %d: %w", pin, rerr))
		}
		if cerr := line.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close pin %d: %w", pin, cerr))
		}
	}
	d.lines = make(map[int]*gpiocdev.Line)
	d.output = make(map[int]bool)

	if d.chip != nil {
		if cerr := d.chip.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close chip: %w", cerr))
		}
		d.chip = nil
	}
	return err
}
