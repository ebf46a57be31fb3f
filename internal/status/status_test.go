package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/relayd/internal/relay"
)

var testConfig = Config{
	Pins:     []int{17, 27, 22, 23},
	Driver:   "mock",
	Broker:   "tcp://localhost:1883",
	HTTPAddr: ":8000",
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, testConfig)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.HTTPAddr != ":8000" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":8000")
	}
	if len(snap.Relays) != 4 {
		t.Fatalf("expected 4 relays, got %d", len(snap.Relays))
	}
	for i, r := range snap.Relays {
		if r.Pin != testConfig.Pins[i] {
			t.Errorf("relay %d: pin %d, want %d", i, r.Pin, testConfig.Pins[i])
		}
		if r.State != relay.StateOff {
			t.Errorf("relay %d: state %q, want off", i, r.State)
		}
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestRelayChanged(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, testConfig)

	t1 := start.Add(time.Minute)
	tr.RelayChanged(relay.Event{Timestamp: t1, Pin: 27, State: relay.StateOn})
	tr.RelayChanged(relay.Event{Timestamp: t1, Pin: 22, State: relay.StateOff})
	for _, p := range testConfig.Pins {
		tr.RelayChanged(relay.Event{Timestamp: t1, Pin: p, State: relay.StateOn, Bulk: true})
	}
	tr.RelayChanged(relay.Event{Timestamp: t1, Pin: 23, State: relay.StateOff, Bulk: true})
	// Unknown pins are ignored.
	tr.RelayChanged(relay.Event{Timestamp: t1, Pin: 99, State: relay.StateOn})

	snap := tr.Snapshot()
	want := map[int]relay.State{17: relay.StateOn, 27: relay.StateOn, 22: relay.StateOn, 23: relay.StateOff}
	for _, r := range snap.Relays {
		if r.State != want[r.Pin] {
			t.Errorf("pin %d: got %q, want %q", r.Pin, r.State, want[r.Pin])
		}
		if !r.UpdatedAt.Equal(t1) {
			t.Errorf("pin %d: UpdatedAt %v, want %v", r.Pin, r.UpdatedAt, t1)
		}
	}

	c := snap.Counts
	if c.On != 1 || c.Off != 1 || c.AllOn != 4 || c.AllOff != 1 {
		t.Errorf("Counts: got %+v", c)
	}
}

func TestMarkAllOff(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, testConfig)
	t1 := start.Add(time.Minute)
	for _, p := range testConfig.Pins {
		tr.RelayChanged(relay.Event{Timestamp: t1, Pin: p, State: relay.StateOn, Bulk: true})
	}

	t2 := t1.Add(time.Minute)
	tr.MarkAllOff(t2, map[int]bool{22: true})

	snap := tr.Snapshot()
	for _, r := range snap.Relays {
		if r.Pin == 22 {
			if r.State != relay.StateOn || !r.UpdatedAt.Equal(t1) {
				t.Errorf("failed pin 22 must keep its state: %+v", r)
			}
			continue
		}
		if r.State != relay.StateOff || !r.UpdatedAt.Equal(t2) {
			t.Errorf("pin %d: got %+v, want off at %v", r.Pin, r, t2)
		}
	}
	if snap.Counts.AllOn != 4 || snap.Counts.AllOff != 0 || snap.Counts.Off != 0 {
		t.Errorf("MarkAllOff must not count commands: %+v", snap.Counts)
	}
}

func TestRecordError(t *testing.T) {
	tr := NewTracker(time.Now(), testConfig)
	tr.RecordError()
	tr.RecordError()
	if n := tr.Snapshot().Counts.Errors; n != 2 {
		t.Errorf("Errors: got %d, want 2", n)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), testConfig)
	tr.RelayChanged(relay.Event{Timestamp: time.Now(), Pin: 17, State: relay.StateOn})

	snap1 := tr.Snapshot()

	tr.RelayChanged(relay.Event{Timestamp: time.Now(), Pin: 17, State: relay.StateOff})

	if snap1.Relays[0].State != relay.StateOn {
		t.Error("snapshot should be a copy; relay state was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Relays: []RelayState{
			{Pin: 17, State: relay.StateOn, UpdatedAt: start.Add(time.Minute)},
			{Pin: 27, State: relay.StateOff, UpdatedAt: start},
		},
		Counts:        Counts{On: 5, Off: 2, Errors: 1},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{Pins: []int{17, 27}, ActiveLow: true, Driver: "cdev", Broker: "tcp://localhost:1883", HTTPAddr: ":8000"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if len(s.Relays) != 2 {
		t.Fatalf("expected 2 relays, got %d", len(s.Relays))
	}
	if s.Relays[0] != (RelayJSON{GPIO: 17, Name: "Relay 1", State: "on", LastUpdated: "2026-01-01T00:01:00Z"}) {
		t.Errorf("relay 0: got %+v", s.Relays[0])
	}
	if s.Relays[1].Name != "Relay 2" || s.Relays[1].State != "off" {
		t.Errorf("relay 1: got %+v", s.Relays[1])
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if s.Counts.On != 5 || s.Counts.Errors != 1 {
		t.Errorf("Counts: got %+v", s.Counts)
	}
	if !s.Config.ActiveLow || s.Config.Driver != "cdev" || len(s.Config.Pins) != 2 {
		t.Errorf("Config: got %+v", s.Config)
	}
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected empty event/reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
	// An empty relay list still encodes as an array.
	if _, ok := status["relays"].([]interface{}); !ok {
		t.Errorf("relays: got %T, want array", status["relays"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
		Network:   &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"},
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), testConfig)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.RelayChanged(relay.Event{Timestamp: time.Now(), Pin: 17, State: relay.StateOn})
			tr.SetMQTTConnected(i%2 == 0)
			tr.RecordError()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
