package status

import (
	"encoding/json"
	"strconv"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Relays        []RelayJSON  `json:"relays"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"command_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// RelayJSON is the last commanded state of one relay.
type RelayJSON struct {
	GPIO        int    `json:"gpio"`
	Name        string `json:"name"`
	State       string `json:"state"`
	LastUpdated string `json:"last_updated"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of command counts.
type CountsJSON struct {
	On     int `json:"on"`
	Off    int `json:"off"`
	AllOn  int `json:"all_on"`
	AllOff int `json:"all_off"`
	Errors int `json:"errors"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Pins      []int  `json:"pins"`
	ActiveLow bool   `json:"active_low"`
	Driver    string `json:"driver"`
	Broker    string `json:"broker"`
	HTTPAddr  string `json:"http_addr"`
}

// RelayName is the display name of the i-th configured relay.
func RelayName(i int) string {
	return "Relay " + strconv.Itoa(i+1)
}

func buildInner(snap Snapshot) StatusInner {
	relays := make([]RelayJSON, len(snap.Relays))
	for i, r := range snap.Relays {
		relays[i] = RelayJSON{
			GPIO:        r.Pin,
			Name:        RelayName(i),
			State:       string(r.State),
			LastUpdated: r.UpdatedAt.UTC().Format(time.RFC3339),
		}
	}

	return StatusInner{
		Relays:        relays,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			On:     snap.Counts.On,
			Off:    snap.Counts.Off,
			AllOn:  snap.Counts.AllOn,
			AllOff: snap.Counts.AllOff,
			Errors: snap.Counts.Errors,
		},
		Config: ConfigJSON{
			Pins:      append([]int{}, snap.Config.Pins...),
			ActiveLow: snap.Config.ActiveLow,
			Driver:    snap.Config.Driver,
			Broker:    snap.Config.Broker,
			HTTPAddr:  snap.Config.HTTPAddr,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
