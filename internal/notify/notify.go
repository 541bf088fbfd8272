// Package notify posts call outcomes to chat webhooks.
package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zulandar/autodialer/internal/dialer"
	"github.com/zulandar/autodialer/internal/models"
)

// Sidebar colors for outcome messages.
const (
	ColorSuccess = "#36a64f"
	ColorError   = "#e53935"
)

// sendTimeout bounds one webhook delivery.
const sendTimeout = 10 * time.Second

// Field is one labelled value of a Message.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Message is a chat-agnostic formatted notification.
type Message struct {
	Title  string
	Body   string
	Color  string
	Fields []Field
}

// Sink delivers a Message to one chat service.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Outcome summarizes a finished call session.
type Outcome struct {
	SessionID   string
	Status      dialer.Status
	Error       string
	Profile     models.CallerProfile
	Duration    time.Duration
	LastMessage string
}

// Format renders an outcome as a Message.
func Format(o Outcome) Message {
	msg := Message{Color: ColorSuccess}
	switch o.Status {
	case dialer.StatusError:
		msg.Title = "Call failed"
		msg.Color = ColorError
		msg.Body = o.Error
	default:
		msg.Title = "Call ended"
		msg.Body = o.LastMessage
	}
	if o.Profile.Name != "" {
		msg.Title += ": " + o.Profile.Name
	}

	add := func(name, value string, short bool) {
		if value != "" {
			msg.Fields = append(msg.Fields, Field{Name: name, Value: value, Short: short})
		}
	}
	add("Phone", o.Profile.Phone, true)
	add("Email", o.Profile.Email, true)
	add("Campaign", o.Profile.CampaignID, true)
	add("Call type", o.Profile.CallType, true)
	if o.Duration > 0 {
		add("Duration", o.Duration.Round(time.Second).String(), true)
	}
	if o.Status == dialer.StatusError && o.LastMessage != "" && o.LastMessage != o.Error {
		add("Last event", o.LastMessage, false)
	}
	add("Session", o.SessionID, false)
	return msg
}

// tracked is what the Notifier remembers about the current session.
type tracked struct {
	id       string
	started  time.Time
	profile  models.CallerProfile
	last     string
	notified bool
}

// Notifier watches dialer snapshots and sends one outcome per session once
// it ends or fails. Delivery is asynchronous and best-effort.
type Notifier struct {
	sinks []Sink
	now   func() time.Time

	mu  sync.Mutex
	cur tracked
	wg  sync.WaitGroup
}

// New returns a Notifier delivering to sinks.
func New(sinks ...Sink) *Notifier {
	return &Notifier{sinks: sinks, now: time.Now}
}

// Events returns the dialer notifications the Notifier listens to.
func (n *Notifier) Events() dialer.Events {
	return dialer.Events{OnSnapshot: n.observe}
}

func (n *Notifier) observe(st dialer.State) {
	if st.SessionID == "" {
		return
	}
	n.mu.Lock()
	if n.cur.id != st.SessionID {
		n.cur = tracked{id: st.SessionID, started: n.now()}
	}
	if st.Profile != nil {
		n.cur.profile = *st.Profile
	}
	if len(st.Log) > 0 {
		n.cur.last = st.Log[len(st.Log)-1].Message
	}
	terminal := st.Status == dialer.StatusCallEnded || st.Status == dialer.StatusError
	if !terminal || n.cur.notified {
		n.mu.Unlock()
		return
	}
	n.cur.notified = true
	o := Outcome{
		SessionID:   st.SessionID,
		Status:      st.Status,
		Error:       st.Error,
		Profile:     n.cur.profile,
		Duration:    n.now().Sub(n.cur.started),
		LastMessage: n.cur.last,
	}
	n.mu.Unlock()

	n.Send(o)
}

// Send delivers an outcome to every sink in the background.
func (n *Notifier) Send(o Outcome) {
	msg := Format(o)
	for _, s := range n.sinks {
		n.wg.Add(1)
		go func(s Sink) {
			defer n.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			if err := s.Send(ctx, msg); err != nil {
				log.Printf("notify: %s: %v", s.Name(), err)
			}
		}(s)
	}
}

// Wait blocks until every pending delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// FromConfig builds the sinks for the configured webhook URLs.
func FromConfig(slackURL, discordURL string) ([]Sink, error) {
	var sinks []Sink
	if slackURL != "" {
		sinks = append(sinks, NewSlack(slackURL))
	}
	if discordURL != "" {
		d, err := NewDiscord(discordURL)
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		sinks = append(sinks, d)
	}
	return sinks, nil
}
