// Package status provides a thread-safe status tracker for the relay daemon.
// It records the last commanded state of each relay as reported by the
// controller; hardware is never read back.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/relayd/internal/relay"
)

// NetworkInfo contains network state as written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Pins      []int
	ActiveLow bool
	Driver    string
	Broker    string
	HTTPAddr  string
}

// RelayState is the last commanded state of one relay.
type RelayState struct {
	Pin       int
	State     relay.State
	UpdatedAt time.Time
}

// Counts tracks commands applied since startup.
type Counts struct {
	On     int // single-relay on
	Off    int // single-relay off
	AllOn  int // pins written by all_on
	AllOff int // pins written by all_off
	Errors int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Relays        []RelayState
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	index map[int]int // pin -> position in snap.Relays
}

// NewTracker creates a Tracker with every configured relay off, which is
// the state the controller establishes at startup.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	t := &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		index: make(map[int]int, len(cfg.Pins)),
	}
	for i, p := range cfg.Pins {
		t.snap.Relays = append(t.snap.Relays, RelayState{Pin: p, State: relay.StateOff, UpdatedAt: startTime})
		t.index[p] = i
	}
	return t
}

// RelayChanged records a successful relay write. It implements
// relay.Observer.
func (t *Tracker) RelayChanged(ev relay.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[ev.Pin]
	if !ok {
		return
	}
	t.snap.Relays[i].State = ev.State
	t.snap.Relays[i].UpdatedAt = ev.Timestamp

	switch {
	case ev.Bulk && ev.State == relay.StateOn:
		t.snap.Counts.AllOn++
	case ev.Bulk:
		t.snap.Counts.AllOff++
	case ev.State == relay.StateOn:
		t.snap.Counts.On++
	default:
		t.snap.Counts.Off++
	}
}

// MarkAllOff records the inactive level written to every relay at
// shutdown, except pins whose write failed. Command counts are unchanged.
func (t *Tracker) MarkAllOff(ts time.Time, failed map[int]bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.snap.Relays {
		if failed[t.snap.Relays[i].Pin] {
			continue
		}
		t.snap.Relays[i].State = relay.StateOff
		t.snap.Relays[i].UpdatedAt = ts
	}
}

// RecordError counts a failed command.
func (t *Tracker) RecordError() {
	t.mu.Lock()
	t.snap.Counts.Errors++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Relays = append([]RelayState(nil), t.snap.Relays...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
