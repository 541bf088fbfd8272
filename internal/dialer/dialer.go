// Package dialer orchestrates a call session: it owns the realtime channel
// and the voice transport, drives the session status and keeps the call log.
package dialer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/autodialer/internal/calllog"
	"github.com/zulandar/autodialer/internal/channel"
	"github.com/zulandar/autodialer/internal/models"
	"github.com/zulandar/autodialer/internal/voice"
)

var (
	// ErrNoActiveSession is returned by SendResponse when neither transport
	// can carry the response.
	ErrNoActiveSession = errors.New("dialer: no active session")

	// ErrSessionActive is returned by StartCall outside the idle status.
	ErrSessionActive = errors.New("dialer: call session already active")

	// ErrSessionAborted is returned by StartCall when the session was ended
	// or reset before setup completed.
	ErrSessionAborted = errors.New("dialer: call session ended during setup")
)

// responseEventPrefix names client events that carry caller responses.
const responseEventPrefix = channel.ClientEventPrefix + "caller_response_"

// ChannelClient is the realtime control channel used by a Dialer.
type ChannelClient interface {
	Bind(h channel.Handlers)
	Connect(ctx context.Context) (channel.Candidate, error)
	Trigger(ctx context.Context, event string, data any) error
	Connected() bool
	Disconnect()
}

// VoiceClient is the voice transport used by a Dialer.
type VoiceClient interface {
	Bind(h voice.Handlers)
	Initialize(ctx context.Context) error
	Connect(ctx context.Context, profile models.CallerProfile, cand channel.Candidate) error
	SendDigits(seq string) error
	HasActiveCall() bool
	Destroy()
}

// Options configures a Dialer.
type Options struct {
	Tenant          string
	Token           string
	CampaignID      string
	CallerChannelID string
	// DialIn skips the voice transport; the backend rings the caller.
	DialIn bool

	Channel ChannelClient
	Voice   VoiceClient
	Events  Events

	// Now defaults to time.Now.
	Now func() time.Time
}

// Dialer runs one call session at a time.
type Dialer struct {
	opts Options
	now  func() time.Time

	mu      sync.Mutex
	state   State
	gen     uint64
	started bool
}

// New creates an idle Dialer and binds it to both transports.
func New(opts Options) *Dialer {
	d := &Dialer{opts: opts, now: opts.Now, state: idleState()}
	if d.now == nil {
		d.now = time.Now
	}
	opts.Channel.Bind(channel.Handlers{
		OnEvent:          d.handleEvent,
		OnConnectionLost: d.handleConnectionLost,
	})
	if opts.Voice != nil {
		opts.Voice.Bind(voice.Handlers{
			OnError:          d.handleTransportError,
			OnConnectionLost: d.handleConnectionLost,
		})
	}
	return d
}

// GetState returns a deep copy of the current state.
func (d *Dialer) GetState() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Clone()
}

// StartCall opens a session for profile: it connects the channel and, unless
// dialing in, the voice transport. Setup failures move the session to the
// error status, append a call_error entry and are returned.
func (d *Dialer) StartCall(ctx context.Context, profile models.CallerProfile) error {
	d.mu.Lock()
	if d.state.Status != StatusIdle {
		status := d.state.Status
		d.mu.Unlock()
		return fmt.Errorf("%w: status %s", ErrSessionActive, status)
	}
	d.gen++
	gen := d.gen
	enriched := d.enrich(profile)

	b := d.batch()
	d.state = idleState()
	d.state.SessionID = uuid.NewString()
	d.state.Profile = &enriched
	d.started = false
	d.setStatus(b, StatusConnecting)
	d.appendEntry(b, calllog.NewEntry(calllog.KindCallStarted, enriched.Fields(), d.now()))
	d.seal(b)
	d.mu.Unlock()
	b.fire()

	cand, err := d.opts.Channel.Connect(ctx)
	if err != nil {
		return d.setupFailed(gen, err)
	}

	if d.opts.DialIn {
		d.mu.Lock()
		if d.gen != gen {
			d.mu.Unlock()
			return d.abandon(nil)
		}
		b := d.batch()
		if d.state.Status == StatusConnecting {
			d.setStatus(b, StatusConnected)
		}
		d.seal(b)
		d.mu.Unlock()
		b.fire()
		return nil
	}

	if d.opts.Voice == nil {
		return d.setupFailed(gen, voice.ErrUnsupportedPlatform)
	}
	if err := d.opts.Voice.Initialize(ctx); err != nil {
		return d.setupFailed(gen, err)
	}
	if err := d.opts.Voice.Connect(ctx, enriched, cand); err != nil {
		return d.setupFailed(gen, err)
	}

	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return d.abandon(nil)
	}
	switch d.state.Status {
	case StatusConnecting, StatusConnected, StatusInCall:
	default:
		status := d.state.Status
		d.mu.Unlock()
		return fmt.Errorf("%w: status %s", ErrSessionAborted, status)
	}
	b = d.batch()
	d.setStatus(b, StatusInCall)
	d.markStarted(b)
	d.seal(b)
	d.mu.Unlock()
	b.fire()
	return nil
}

// enrich fills the session fields the caller does not supply.
func (d *Dialer) enrich(p models.CallerProfile) models.CallerProfile {
	if d.opts.CampaignID != "" {
		p.CampaignID = d.opts.CampaignID
	}
	if p.CallerChannelID == "" {
		p.CallerChannelID = d.opts.CallerChannelID
	}
	if p.Tenant == "" {
		p.Tenant = d.opts.Tenant
	}
	if p.Token == "" {
		p.Token = d.opts.Token
	}
	p.CallType = models.CallTypeWebRTC
	if d.opts.DialIn {
		p.CallType = models.CallTypeDialIn
	}
	return p
}

// setupFailed surfaces a StartCall failure and releases both transports.
func (d *Dialer) setupFailed(gen uint64, err error) error {
	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return d.abandon(err)
	}
	b := d.batch()
	msg := err.Error()
	d.appendEntry(b, calllog.NewEntry(calllog.KindCallError, map[string]any{"message": msg}, d.now()))
	d.fail(b, msg)
	d.seal(b)
	d.mu.Unlock()

	log.Printf("dialer: start call: %v", err)
	d.teardown()
	b.fire()
	return err
}

// abandon releases what an aborted StartCall created, unless a newer
// session already owns the transports.
func (d *Dialer) abandon(cause error) error {
	d.mu.Lock()
	status := d.state.Status
	d.mu.Unlock()
	if status == StatusIdle || status == StatusCallEnded {
		d.teardown()
	}
	if cause != nil {
		return fmt.Errorf("%w: %w", ErrSessionAborted, cause)
	}
	return ErrSessionAborted
}

// EndCall hangs up from the caller side: both transports are released, the
// log is cleared and the session moves to call-ended.
func (d *Dialer) EndCall() error {
	d.mu.Lock()
	if d.state.Status == StatusIdle {
		d.mu.Unlock()
		return ErrNoActiveSession
	}
	d.gen++
	b := d.batch()
	if len(d.state.Log) > 0 {
		d.state.Log = []calllog.Entry{}
		d.state.Interaction = calllog.Interaction{Type: calllog.InteractionNone}
		b.logUpdate([]calllog.Entry{})
	}
	if d.setStatus(b, StatusCallEnded) {
		b.callEnd()
	}
	d.seal(b)
	d.mu.Unlock()

	d.teardown()
	b.fire()
	return nil
}

// ResetToIdle discards the session whatever its status.
func (d *Dialer) ResetToIdle() {
	d.mu.Lock()
	d.gen++
	b := d.batch()
	hadLog := len(d.state.Log) > 0
	prev := d.state.Status
	d.state = idleState()
	d.started = false
	if prev != StatusIdle {
		b.status(StatusIdle)
	}
	if hadLog {
		b.logUpdate([]calllog.Entry{})
	}
	d.seal(b)
	d.mu.Unlock()

	d.teardown()
	b.fire()
}

// SendResponse forwards a caller response. A live voice call receives it as
// DTMF digits; otherwise it is published on the channel under a unique
// event name.
func (d *Dialer) SendResponse(ctx context.Context, response string) error {
	d.mu.Lock()
	status := d.state.Status
	var profile models.CallerProfile
	if d.state.Profile != nil {
		profile = *d.state.Profile
	}
	d.mu.Unlock()

	if status == StatusIdle {
		return ErrNoActiveSession
	}
	if profile.CallType == models.CallTypeWebRTC && d.opts.Voice != nil && d.opts.Voice.HasActiveCall() {
		return d.opts.Voice.SendDigits(response)
	}
	if !d.opts.Channel.Connected() {
		return ErrNoActiveSession
	}

	now := d.now()
	return d.opts.Channel.Trigger(ctx, responseEventName(now), map[string]any{
		"response":        response,
		"callerChannelId": profile.CallerChannelID,
		"timestamp":       now.UnixMilli(),
	})
}

func responseEventName(now time.Time) string {
	return fmt.Sprintf("%s%d_%s", responseEventPrefix, now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
}

func (d *Dialer) handleEvent(name string, raw json.RawMessage) {
	cls := Classify(name)
	if cls.Ignored {
		log.Printf("dialer: ignoring channel event %q", name)
		return
	}
	data := decodePayload(raw)

	d.mu.Lock()
	if d.state.Status == StatusIdle {
		d.mu.Unlock()
		return
	}
	b := d.batch()
	entry := calllog.NewEntry(cls.Kind, data, d.now())
	d.appendEntry(b, entry)
	switch cls.Effect {
	case EffectInCall:
		if d.setStatus(b, StatusInCall) {
			d.markStarted(b)
		}
	case EffectEnded:
		if d.setStatus(b, StatusCallEnded) {
			b.callEnd()
		}
	case EffectError:
		d.fail(b, entry.Message)
	}
	d.seal(b)
	d.mu.Unlock()
	b.fire()
}

// handleConnectionLost reports a lost transport. A session that already
// ended does not turn into an error.
func (d *Dialer) handleConnectionLost(reason string) {
	d.mu.Lock()
	switch d.state.Status {
	case StatusIdle, StatusCallEnded:
		d.mu.Unlock()
		return
	}
	b := d.batch()
	d.appendEntry(b, calllog.NewEntry(calllog.KindCallError, map[string]any{"message": reason}, d.now()))
	d.fail(b, reason)
	d.seal(b)
	d.mu.Unlock()
	b.fire()
}

func (d *Dialer) handleTransportError(msg string) {
	d.mu.Lock()
	if d.state.Status == StatusIdle {
		d.mu.Unlock()
		return
	}
	b := d.batch()
	d.appendEntry(b, calllog.NewEntry(calllog.KindCallError, map[string]any{"message": msg}, d.now()))
	d.fail(b, msg)
	d.seal(b)
	d.mu.Unlock()
	b.fire()
}

func (d *Dialer) teardown() {
	if d.opts.Voice != nil {
		d.opts.Voice.Destroy()
	}
	d.opts.Channel.Disconnect()
}

func (d *Dialer) batch() *batch {
	return &batch{ev: d.opts.Events}
}

// seal queues the snapshot notification behind any pending ones. It must be
// called with d.mu held.
func (d *Dialer) seal(b *batch) {
	if b.changed {
		b.snapshot(d.state.Clone())
	}
}

// setStatus must be called with d.mu held. It reports whether the status
// changed.
func (d *Dialer) setStatus(b *batch, s Status) bool {
	if s != StatusError {
		d.state.Error = ""
	}
	if d.state.Status == s {
		return false
	}
	d.state.Status = s
	b.status(s)
	return true
}

// fail must be called with d.mu held.
func (d *Dialer) fail(b *batch, msg string) {
	d.state.Error = msg
	d.setStatus(b, StatusError)
	b.error(msg)
}

// appendEntry must be called with d.mu held.
func (d *Dialer) appendEntry(b *batch, e calllog.Entry) {
	d.state.Log = append(d.state.Log, e)
	d.state.Interaction = calllog.CurrentInteraction(d.state.Log)
	b.logUpdate(calllog.Clone(d.state.Log))
}

// markStarted fires the call-start notification once per session. It must
// be called with d.mu held.
func (d *Dialer) markStarted(b *batch) {
	if d.started || d.state.Profile == nil {
		return
	}
	d.started = true
	b.callStart(*d.state.Profile)
}

// decodePayload turns a channel payload into a log entry payload. Non-object
// payloads are kept under "value".
func decodePayload(raw json.RawMessage) map[string]any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{"value": string(raw)}
	}
	if s, ok := v.(string); ok {
		return map[string]any{"message": s}
	}
	return map[string]any{"value": v}
}
