// Package relay contains the relay-control logic: which pins may be driven,
// how a logical on/off maps to a physical level, and the teardown contract.
// Hardware access goes through gpio.Driver only.
package relay

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/relayd/internal/gpio"
)

// State is the caller-facing logical state of a relay.
type State string

const (
	StateOn  State = "on"
	StateOff State = "off"
)

// ParseState accepts "on" or "off" in any case.
func ParseState(s string) (State, error) {
	switch State(strings.ToLower(strings.TrimSpace(s))) {
	case StateOn:
		return StateOn, nil
	case StateOff:
		return StateOff, nil
	}
	return "", &ValidationError{Message: "État invalide (utilise 'on' ou 'off')."}
}

// Level returns the physical level that puts a relay in the given logical
// state. Active-low relays energize on LOW.
func Level(state State, activeLow bool) gpio.Level {
	if (state == StateOn) != activeLow {
		return gpio.High
	}
	return gpio.Low
}

// Result confirms the logical state applied to a pin.
type Result struct {
	Pin   int
	State State
}

// Event reports one successful relay write.
type Event struct {
	Timestamp time.Time
	Pin       int
	State     State
	Bulk      bool // written by AllOn/AllOff
}

// Observer is notified of every successful relay write, in write order.
// It is called with the controller locked and must not block.
type Observer interface {
	RelayChanged(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// RelayChanged calls f(ev).
func (f ObserverFunc) RelayChanged(ev Event) { f(ev) }

// ValidationError is returned for commands naming an undeclared pin or an
// unrecognized state. No hardware is touched.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// DriverError wraps a failure of the underlying pin driver.
type DriverError struct {
	Op  string // "configure", "write" or "release"
	Pin int    // 0 for release
	Err error
}

func (e *DriverError) Error() string {
	if e.Pin == 0 {
		return fmt.Sprintf("gpio %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gpio %s pin %d: %v", e.Op, e.Pin, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// ErrShutdown is returned by every operation after Shutdown.
var ErrShutdown = errors.New("relay controller is shut down")
