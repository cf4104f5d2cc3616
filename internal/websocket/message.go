package websocket

import (
	"encoding/json"
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/alarms"
	"github.com/frostdev-ops/meterdash/internal/core/meter"
)

// Message types for WebSocket communication
const (
	MessageTypeLiveData   = "liveData"
	MessageTypeAlarms     = "alarms"
	MessageTypeConnection = "connection"
	MessageTypeHeartbeat  = "heartbeat"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
	MessageTypeSnapshot   = "snapshot"
	MessageTypeError      = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes, stamping it if unset.
func (m Message) ToJSON() []byte {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	data, _ := json.Marshal(m)
	return data
}

// inbound is what clients send; only the type matters.
type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// LiveDataMessage carries the newest meter reading.
func LiveDataMessage(r meter.Reading) Message {
	return Message{Type: MessageTypeLiveData, Data: r}
}

// AlarmsMessage carries the alarm events raised for one poll. An empty list
// tells clients that nothing is currently in alarm.
func AlarmsMessage(events []alarms.Event) Message {
	if events == nil {
		events = []alarms.Event{}
	}
	return Message{Type: MessageTypeAlarms, Data: events}
}

func errorMessage(text string) Message {
	return Message{
		Type: MessageTypeError,
		Data: map[string]interface{}{"message": text},
	}
}
