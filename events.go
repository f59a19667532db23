package relay

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types pushed to subscribers. The first frame on any new connection is
// always EventConnected.
const (
	EventConnected  = "connected"
	EventHeartbeat  = "heartbeat"
	EventPeerUpdate = "peerUpdate"
	EventPeerGone   = "peerGone"
	EventMessage    = "message"
	EventBroadcast  = "broadcast"
)

// Event is one frame on the push stream: a type tag plus a JSON payload,
// marshalled once so every subscriber receives identical bytes.
type Event struct {
	Type string
	Data []byte
}

// NewEvent marshals payload into an event of the given type.
func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return Event{Type: eventType, Data: data}, nil
}

// RawEvent wraps already-encoded JSON into an event without re-marshalling.
func RawEvent(eventType string, data json.RawMessage) Event {
	return Event{Type: eventType, Data: data}
}

// ConnectedPayload is the body of the first frame on a new connection. It
// reveals the connection id so the client can associate itself with a peer
// afterwards.
type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
	ServerTime   int64  `json:"serverTime"`
}

// HeartbeatPayload is the body of the periodic keep-alive frame.
type HeartbeatPayload struct {
	ServerTime int64 `json:"serverTime"`
}

// PeerGonePayload announces that a peer's state expired and was dropped.
type PeerGonePayload struct {
	ID string `json:"id"`
}

// ConnectedEvent builds the first frame sent on every new connection.
func ConnectedEvent(connectionID string, now time.Time) Event {
	evt, _ := NewEvent(EventConnected, ConnectedPayload{
		ConnectionID: connectionID,
		ServerTime:   now.UnixMilli(),
	})
	return evt
}

func heartbeatEvent(now time.Time) Event {
	evt, _ := NewEvent(EventHeartbeat, HeartbeatPayload{ServerTime: now.UnixMilli()})
	return evt
}
