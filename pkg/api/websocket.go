package api

import "encoding/json"

type (
	// WebSocketEvent is the wire form of an engine event delivered to
	// subscribed WebSocket clients. Data carries the raw event payload
	WebSocketEvent struct {
		Type        EventType       `json:"type"`
		Data        json.RawMessage `json:"data"`
		AggregateID []string        `json:"id"`
		Timestamp   int64           `json:"timestamp"`
		Sequence    int64           `json:"sequence"`
	}

	// SubscribeRequest is a client's request to receive events
	SubscribeRequest struct {
		Type string             `json:"type"`
		Data ClientSubscription `json:"data"`
	}

	// ClientSubscription narrows which events a client receives. An empty
	// subscription receives everything
	ClientSubscription struct {
		AggregateID []string    `json:"aggregate_id"`
		EventTypes  []EventType `json:"event_types,omitempty"`
	}

	// SubscribedResult acknowledges a subscription, carrying the
	// aggregate's current folded state so clients start from a known point
	SubscribedResult struct {
		Type        string          `json:"type"`
		AggregateID []string        `json:"id"`
		Data        json.RawMessage `json:"data"`
		Sequence    int64           `json:"sequence"`
	}
)
