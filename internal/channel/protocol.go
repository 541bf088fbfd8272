package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Version is the client version reported to the provider.
const Version = "1.0.0"

const (
	protocolVersion = "7"
	clientName      = "autodialer-go"
)

// Provider event names.
const (
	eventConnectionEstablished = "pusher:connection_established"
	eventError                 = "pusher:error"
	eventPing                  = "pusher:ping"
	eventPong                  = "pusher:pong"
	eventSubscribe             = "pusher:subscribe"
	eventUnsubscribe           = "pusher:unsubscribe"
	eventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
	eventSubscriptionError     = "pusher:subscription_error"
)

// ClientEventPrefix is required on every event a client publishes.
const ClientEventPrefix = "client-"

// frame is one message on the websocket.
type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type connectionEstablished struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"`
}

type providerError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e providerError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// fatal reports whether the provider asked the client not to reconnect.
func (e providerError) fatal() bool {
	return e.Code >= 4000 && e.Code < 4100
}

// payload returns the frame data as raw JSON. The provider double-encodes
// most payloads as a JSON string.
func (f frame) payload() json.RawMessage {
	raw := bytes.TrimSpace(f.Data)
	if len(raw) == 0 || raw[0] != '"' {
		return raw
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return raw
	}
	inner := []byte(s)
	if json.Valid(inner) {
		return inner
	}
	return raw
}

// internal reports whether an event belongs to the provider rather than
// the application.
func internal(event string) bool {
	return strings.HasPrefix(event, "pusher")
}

func encodeFrame(event, channel string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("channel: encode %s: %w", event, err)
		}
		raw = b
	}
	return json.Marshal(frame{Event: event, Channel: channel, Data: raw})
}
