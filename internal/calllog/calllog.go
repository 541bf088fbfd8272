// Package calllog defines the ordered audit log of a call session and the
// interactive sub-flow derived from its tail.
package calllog

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the closed set of call log entry kinds.
type Kind string

const (
	KindCallStarted             Kind = "call_started"
	KindCallConnected           Kind = "call_connected"
	KindCallEnded               Kind = "call_ended"
	KindCallDisconnected        Kind = "call_disconnected"
	KindCallError               Kind = "call_error"
	KindCallRedirect            Kind = "call_redirect"
	KindCallRedirecting         Kind = "call_redirecting"
	KindCallConnectedConference Kind = "call_connected_conference"
	KindCallTargetHangup        Kind = "call_target_hangup"
	KindElectoralPostcode       Kind = "call_electoral_postcode"
	KindElectoralLookup         Kind = "call_electoral_lookup"
	KindElectoralTarget         Kind = "call_electoral_target"
	KindSelectElectorate        Kind = "call_select_electorate"
	KindSurvey                  Kind = "call_survey"
	KindSurveyResult            Kind = "call_survey_result"
)

var defaultMessages = map[Kind]string{
	KindCallStarted:             "Call started",
	KindCallConnected:           "Call connected",
	KindCallEnded:               "Call ended",
	KindCallDisconnected:        "Call disconnected",
	KindCallError:               "An error occurred during the call",
	KindCallRedirect:            "Call redirected",
	KindCallRedirecting:         "Redirecting to target",
	KindCallConnectedConference: "Connected to target",
	KindCallTargetHangup:        "Target hung up",
	KindElectoralPostcode:       "Please enter your postcode",
	KindElectoralLookup:         "Looking up your representative",
	KindElectoralTarget:         "Please enter your postcode",
	KindSelectElectorate:        "Please select your district",
	KindSurvey:                  "Survey Question",
	KindSurveyResult:            "Processing your response",
}

// DefaultMessage returns the human-readable fallback message for a kind.
func DefaultMessage(k Kind) string {
	return defaultMessages[k]
}

// Entry is one immutable call log record.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      Kind           `json:"event_type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEntry builds an entry whose message is the payload's own "message"
// field when present, else the kind's default message.
func NewEntry(kind Kind, data map[string]any, at time.Time) Entry {
	msg := stringField(data, "message")
	if msg == "" {
		msg = DefaultMessage(kind)
	}
	return Entry{
		ID:        uuid.NewString(),
		Timestamp: at,
		Kind:      kind,
		Message:   msg,
		Data:      data,
	}
}

// Clone returns a copy of the log that shares no payload memory with the
// original.
func Clone(log []Entry) []Entry {
	if log == nil {
		return nil
	}
	out := make([]Entry, len(log))
	for i, e := range log {
		e.Data = CloneData(e.Data)
		out[i] = e
	}
	return out
}

// CloneData deep-copies a decoded JSON payload. Nested objects and arrays
// are copied; other values are immutable and shared.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneData(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// stringField returns data[key] when it is a non-empty string.
func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	s, _ := data[key].(string)
	return s
}
