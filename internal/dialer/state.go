package dialer

import (
	"slices"

	"github.com/zulandar/autodialer/internal/calllog"
	"github.com/zulandar/autodialer/internal/models"
)

// Status is the lifecycle status of a call session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusInCall     Status = "in-call"
	StatusCallEnded  Status = "call-ended"
	StatusError      Status = "error"
)

// State is a snapshot of the call session.
type State struct {
	Status Status `json:"status"`
	// Error is set only while Status is StatusError.
	Error string `json:"error,omitempty"`
	// Profile is set from connecting until the session returns to idle.
	Profile     *models.CallerProfile `json:"profile,omitempty"`
	Log         []calllog.Entry       `json:"call_log"`
	Interaction calllog.Interaction   `json:"interaction"`
	SessionID   string                `json:"session_id,omitempty"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	out.Log = calllog.Clone(s.Log)
	if out.Log == nil {
		out.Log = []calllog.Entry{}
	}
	out.Interaction.Answers = slices.Clone(s.Interaction.Answers)
	out.Interaction.Districts = slices.Clone(s.Interaction.Districts)
	out.Interaction.Data = calllog.CloneData(s.Interaction.Data)
	return out
}

func idleState() State {
	return State{
		Status:      StatusIdle,
		Log:         []calllog.Entry{},
		Interaction: calllog.Interaction{Type: calllog.InteractionNone},
	}
}
