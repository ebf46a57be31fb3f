package gpio

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// OpKind identifies a recorded driver call.
type OpKind string

const (
	OpConfigure OpKind = "configure"
	OpWrite     OpKind = "write"
	OpRelease   OpKind = "release"
)

// Op is a single recorded driver call.
type Op struct {
	Kind  OpKind
	Pin   int
	Level Level
}

// String formats the call the way the mock log prints it.
func (o Op) String() string {
	switch o.Kind {
	case OpConfigure:
		return fmt.Sprintf("setup(pin=%d, mode=OUT)", o.Pin)
	case OpWrite:
		return fmt.Sprintf("output(pin=%d, state=%s)", o.Pin, o.Level)
	default:
		return "cleanup()"
	}
}

// FakeDriver is an in-memory Driver that records every call.
// It is safe for concurrent use.
type FakeDriver struct {
	mu  sync.Mutex
	ops []Op

	// ConfigureErrors maps a pin to the error ConfigureOutput returns for it.
	ConfigureErrors map[int]error

	// WriteErrors maps a pin to the error WriteLevel returns for it.
	WriteErrors map[int]error

	// ReleaseError, if set, will be returned by Release.
	ReleaseError error

	// Verbose logs every call with a [mock] prefix.
	Verbose bool

	configured map[int]bool
	released   bool
}

// NewFakeDriver creates an empty FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{configured: make(map[int]bool)}
}

// ConfigureOutput records the call and marks the pin configured.
func (f *FakeDriver) ConfigureOutput(pin int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ConfigureErrors[pin]; err != nil {
		return err
	}
	if f.configured == nil {
		f.configured = make(map[int]bool)
	}
	f.configured[pin] = true
	f.record(Op{Kind: OpConfigure, Pin: pin})
	return nil
}

// WriteLevel records the write. Writing an unconfigured pin is an error.
func (f *FakeDriver) WriteLevel(pin int, level Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.WriteErrors[pin]; err != nil {
		return err
	}
	if !f.configured[pin] {
		return fmt.Errorf("pin %d not configured as output", pin)
	}
	f.record(Op{Kind: OpWrite, Pin: pin, Level: level})
	return nil
}

// Release records the call and forgets all configured pins.
func (f *FakeDriver) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.released {
		return errors.New("fake driver already released")
	}
	f.released = true
	f.configured = make(map[int]bool)
	f.record(Op{Kind: OpRelease})
	return f.ReleaseError
}

// must hold f.mu
func (f *FakeDriver) record(op Op) {
	f.ops = append(f.ops, op)
	if f.Verbose {
		log.Printf("[mock] GPIO.%s", op)
	}
}

// Ops returns a copy of every recorded call in order.
func (f *FakeDriver) Ops() []Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Op(nil), f.ops...)
}

// Writes returns only the recorded writes in order.
func (f *FakeDriver) Writes() []Op {
	f.mu.Lock()
	defer f.mu.Unlock()

	var writes []Op
	for _, op := range f.ops {
		if op.Kind == OpWrite {
			writes = append(writes, op)
		}
	}
	return writes
}

// Released reports whether Release was called.
func (f *FakeDriver) Released() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

// Reset clears the call log. Configured pins are kept.
func (f *FakeDriver) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = nil
}
