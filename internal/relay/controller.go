package relay

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/sweeney/relayd/internal/gpio"
)

// Config describes the managed relays.
type Config struct {
	// Pins in the order bulk operations drive them.
	Pins []int

	// ActiveLow relays energize when their pin is LOW.
	ActiveLow bool

	// Observer, if set, receives an Event for every successful write made by
	// Control, AllOn and AllOff.
	Observer Observer

	// Now defaults to time.Now.
	Now func() time.Time
}

// Controller owns a fixed set of relay pins and serializes every write to
// them. The zero value is not usable; construct with New.
type Controller struct {
	pins      []int
	declared  map[int]bool
	activeLow bool
	observer  Observer
	now       func() time.Time

	// mu covers every driver call, including setup and teardown.
	mu     sync.Mutex
	driver gpio.Driver // nil after Shutdown
}

// New configures every pin as an output driven to the inactive level and
// takes ownership of the driver. On failure no further pins are touched and
// the driver is released; it must not be reused.
func New(driver gpio.Driver, cfg Config) (*Controller, error) {
	if err := validatePins(cfg.Pins); err != nil {
		if rerr := driver.Release(); rerr != nil {
			return nil, multierr.Append(err, &DriverError{Op: "release", Err: rerr})
		}
		return nil, err
	}

	c := &Controller{
		pins:      append([]int(nil), cfg.Pins...),
		declared:  make(map[int]bool, len(cfg.Pins)),
		activeLow: cfg.ActiveLow,
		observer:  cfg.Observer,
		now:       cfg.Now,
		driver:    driver,
	}
	if c.now == nil {
		c.now = time.Now
	}
	for _, p := range c.pins {
		c.declared[p] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	inactive := Level(StateOff, c.activeLow)
	for _, p := range c.pins {
		var derr *DriverError
		if err := driver.ConfigureOutput(p); err != nil {
			derr = &DriverError{Op: "configure", Pin: p, Err: err}
		} else if err := driver.WriteLevel(p, inactive); err != nil {
			derr = &DriverError{Op: "write", Pin: p, Err: err}
		}
		if derr != nil {
			c.driver = nil
			if rerr := driver.Release(); rerr != nil {
				return nil, multierr.Append(derr, &DriverError{Op: "release", Err: rerr})
			}
			return nil, derr
		}
	}

	log.Printf("relay: %d relays ready %v (active_low=%v)", len(c.pins), c.pins, c.activeLow)
	return c, nil
}

func validatePins(pins []int) error {
	if len(pins) == 0 {
		return errors.New("relay: no pins configured")
	}
	seen := make(map[int]bool, len(pins))
	for _, p := range pins {
		if p <= 0 {
			return fmt.Errorf("relay: invalid pin %d", p)
		}
		if seen[p] {
			return fmt.Errorf("relay: pin %d declared twice", p)
		}
		seen[p] = true
	}
	return nil
}

// Pins returns the managed pins in configured order.
func (c *Controller) Pins() []int {
	return append([]int(nil), c.pins...)
}

// ActiveLow reports the controller's polarity.
func (c *Controller) ActiveLow() bool {
	return c.activeLow
}

// Control sets one relay. Undeclared pins and unrecognized states return a
// *ValidationError without any driver call.
func (c *Controller) Control(pin int, state string) (Result, error) {
	if !c.declared[pin] {
		return Result{}, &ValidationError{Message: fmt.Sprintf("GPIO %d non déclaré.", pin)}
	}
	s, err := ParseState(state)
	if err != nil {
		return Result{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver == nil {
		return Result{}, ErrShutdown
	}
	if err := c.write(pin, s, false); err != nil {
		return Result{}, err
	}
	log.Printf("relay: GPIO %d -> %s", pin, s)
	return Result{Pin: pin, State: s}, nil
}

// AllOn energizes every relay in configured order.
func (c *Controller) AllOn() error {
	return c.setAll(StateOn)
}

// AllOff releases every relay in configured order.
func (c *Controller) AllOff() error {
	return c.setAll(StateOff)
}

// setAll stops at the first driver failure; pins after it are not written.
func (c *Controller) setAll(s State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver == nil {
		return ErrShutdown
	}
	for _, p := range c.pins {
		if err := c.write(p, s, true); err != nil {
			return err
		}
	}
	log.Printf("relay: all relays -> %s", s)
	return nil
}

// must hold c.mu
func (c *Controller) write(pin int, s State, bulk bool) error {
	if err := c.driver.WriteLevel(pin, Level(s, c.activeLow)); err != nil {
		log.Printf("relay: write GPIO %d failed: %v", pin, err)
		return &DriverError{Op: "write", Pin: pin, Err: err}
	}
	if c.observer != nil {
		c.observer.RelayChanged(Event{Timestamp: c.now(), Pin: pin, State: s, Bulk: bulk})
	}
	return nil
}

// Shutdown drives every relay inactive and releases the driver. It waits
// for any operation in progress. Every later call on the controller,
// including a second Shutdown, returns ErrShutdown.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver == nil {
		return ErrShutdown
	}
	driver := c.driver
	c.driver = nil

	var err error
	inactive := Level(StateOff, c.activeLow)
	for _, p := range c.pins {
		if werr := driver.WriteLevel(p, inactive); werr != nil {
			err = multierr.Append(err, &DriverError{Op: "write", Pin: p, Err: werr})
		}
	}
	if rerr := driver.Release(); rerr != nil {
		err = multierr.Append(err, &DriverError{Op: "release", Err: rerr})
	}
	log.Printf("relay: shutdown complete")
	return err
}
