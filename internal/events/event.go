package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/srg/blecentral/internal/codec"
)

// Type identifies the kind of event.
type Type string

const (
	DeviceFound   Type = "device_found"
	RSSIChanged   Type = "rssi_changed"
	Connected     Type = "connected"
	Disconnected  Type = "disconnected"
	Ready         Type = "ready"
	ValueRead     Type = "value_read"
	ValueChanged  Type = "value_changed"
	ValueWrite    Type = "value_write"
	ErrorOccurred Type = "error_occurred"
)

// Types lists every event type in a stable order.
var Types = []Type{
	DeviceFound, RSSIChanged, Connected, Disconnected, Ready,
	ValueRead, ValueChanged, ValueWrite, ErrorOccurred,
}

// ParseType resolves an event type by name.
func ParseType(s string) (Type, error) {
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// RSSISource tells whether an RSSI value came from an advertisement or from
// an active link.
type RSSISource string

const (
	SourceDiscovery RSSISource = "discovery"
	SourceLink      RSSISource = "link"
)

// Event is a one-way notification to consumers. Fields that do not apply to
// a given Type hold zero values.
type Event struct {
	Type           Type          `json:"type"`
	Address        string        `json:"address,omitempty"`
	Name           string        `json:"name,omitempty"`
	RSSI           int           `json:"rssi,omitempty"`
	Source         RSSISource    `json:"source,omitempty"`
	Service        string        `json:"service,omitempty"`
	Characteristic string        `json:"characteristic,omitempty"`
	Value          codec.Reading `json:"value"`
	Err            error         `json:"-"`
	Timestamp      time.Time     `json:"timestamp"`
}

// MarshalJSON renders Err as its message under "error".
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(e)}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return json.Marshal(out)
}

func (e Event) String() string {
	switch e.Type {
	case DeviceFound:
		return fmt.Sprintf("%s %s %q rssi=%d", e.Type, e.Address, e.Name, e.RSSI)
	case RSSIChanged:
		return fmt.Sprintf("%s %s rssi=%d (%s)", e.Type, e.Address, e.RSSI, e.Source)
	case ValueRead, ValueChanged:
		return fmt.Sprintf("%s %s %s int=%d float=%g text=%q raw=%s",
			e.Type, e.Address, e.Characteristic, e.Value.Int, e.Value.Float, e.Value.Text, e.Value.Raw)
	case ValueWrite:
		return fmt.Sprintf("%s %s %s", e.Type, e.Address, e.Characteristic)
	case ErrorOccurred:
		return fmt.Sprintf("%s %s %v", e.Type, e.Address, e.Err)
	default:
		return fmt.Sprintf("%s %s", e.Type, e.Address)
	}
}
