package entities

import (
	"encoding/json"
	"time"
)

// Token is the short-lived bearer credential authorizing the stream.
type Token string

// ConnectionState is the stream connection state owned by the supervisor.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reauthenticating
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reauthenticating:
		return "reauthenticating"
	default:
		return "unknown"
	}
}

// StreamEvent is one named event as delivered by the stream client.
type StreamEvent struct {
	Name       string
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// NormalizedMetric is a typed value ready for publication.
// Value holds a string or a float64. Bulk metrics carry the original payload in Raw.
type NormalizedMetric struct {
	Name      string
	Value     interface{}
	Timestamp time.Time
	Bulk      bool
	Raw       []byte
}
