// Package events fans restaurant events out to live dashboard connections,
// locally and across instances through a shared broadcast channel.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind is the closed set of event types pushed to dashboards.
type Kind string

const (
	KindNewBooking     Kind = "new_booking"
	KindStatusChange   Kind = "status_change"
	KindNewMessage     Kind = "new_message"
	KindWaitTimeUpdate Kind = "wait_time_update"
	KindConnected      Kind = "connected"
)

var ErrUnknownKind = errors.New("unknown event kind")

func (k Kind) Valid() bool {
	switch k {
	case KindNewBooking, KindStatusChange, KindNewMessage, KindWaitTimeUpdate, KindConnected:
		return true
	default:
		return false
	}
}

// Frame is the JSON unit written to a dashboard connection.
type Frame struct {
	Type      Kind            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Envelope is the JSON unit published on the shared channel.
type Envelope struct {
	RestaurantID   string          `json:"restaurantId"`
	Type           Kind            `json:"type"`
	Data           json.RawMessage `json:"data"`
	SourceServerID string          `json:"sourceServerId"`
	PublishedAt    time.Time       `json:"publishedAt"`
}

func (e Envelope) frame() Frame {
	return Frame{Type: e.Type, Data: e.Data, Timestamp: e.PublishedAt}
}

// EncodeFrame serializes a frame for kind with the given payload.
func EncodeFrame(kind Kind, payload any, at time.Time) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	return json.Marshal(Frame{Type: kind, Data: data, Timestamp: at})
}
