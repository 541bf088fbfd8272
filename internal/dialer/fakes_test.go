package dialer

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/zulandar/autodialer/internal/calllog"
	"github.com/zulandar/autodialer/internal/channel"
	"github.com/zulandar/autodialer/internal/models"
	"github.com/zulandar/autodialer/internal/voice"
)

type trigger struct {
	event string
	data  map[string]any
}

type fakeChannel struct {
	mu          sync.Mutex
	handlers    channel.Handlers
	cand        channel.Candidate
	connectErr  error
	block       chan struct{}
	connected   bool
	triggers    []trigger
	disconnects int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{cand: channel.Candidate{AppID: "1001", Cluster: "eu", Key: "k"}}
}

func (f *fakeChannel) Bind(h channel.Handlers) {
	f.mu.Lock()
	f.handlers = h
	f.mu.Unlock()
}

func (f *fakeChannel) Connect(ctx context.Context) (channel.Candidate, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return channel.Candidate{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return channel.Candidate{}, f.connectErr
	}
	f.connected = true
	return f.cand, nil
}

func (f *fakeChannel) Trigger(_ context.Context, event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, trigger{event: event, data: data.(map[string]any)})
	return nil
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.disconnects++
	f.mu.Unlock()
}

// emit delivers a channel event the way the realtime client does.
func (f *fakeChannel) emit(name string, data any) {
	raw, _ := json.Marshal(data)
	f.mu.Lock()
	fn := f.handlers.OnEvent
	f.mu.Unlock()
	fn(name, raw)
}

func (f *fakeChannel) lose(reason string) {
	f.mu.Lock()
	fn := f.handlers.OnConnectionLost
	f.mu.Unlock()
	fn(reason)
}

func (f *fakeChannel) getTriggers() []trigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]trigger(nil), f.triggers...)
}

type fakeVoice struct {
	mu         sync.Mutex
	handlers   voice.Handlers
	initErr    error
	connectErr error
	active     bool
	digits     []string
	profiles   []models.CallerProfile
	cands      []channel.Candidate
	destroys   int
}

func (f *fakeVoice) Bind(h voice.Handlers) {
	f.mu.Lock()
	f.handlers = h
	f.mu.Unlock()
}

func (f *fakeVoice) Initialize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initErr
}

func (f *fakeVoice) Connect(_ context.Context, p models.CallerProfile, c channel.Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles = append(f.profiles, p)
	f.cands = append(f.cands, c)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.active = true
	return nil
}

func (f *fakeVoice) SendDigits(seq string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return voice.ErrNoActiveCall
	}
	f.digits = append(f.digits, seq)
	return nil
}

func (f *fakeVoice) HasActiveCall() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeVoice) Destroy() {
	f.mu.Lock()
	f.active = false
	f.destroys++
	f.mu.Unlock()
}

func (f *fakeVoice) lose(msg string) {
	f.mu.Lock()
	fn := f.handlers.OnConnectionLost
	f.mu.Unlock()
	fn(msg)
}

func (f *fakeVoice) fail(msg string) {
	f.mu.Lock()
	fn := f.handlers.OnError
	f.mu.Unlock()
	fn(msg)
}

// notifications records every event a Dialer emits.
type notifications struct {
	mu       sync.Mutex
	statuses []Status
	errors   []string
	starts   []models.CallerProfile
	ends     int
	logs     [][]calllog.Entry
}

func (n *notifications) events() Events {
	return Events{
		OnStatusChange: func(s Status) {
			n.mu.Lock()
			n.statuses = append(n.statuses, s)
			n.mu.Unlock()
		},
		OnError: func(msg string) {
			n.mu.Lock()
			n.errors = append(n.errors, msg)
			n.mu.Unlock()
		},
		OnCallStart: func(p models.CallerProfile) {
			n.mu.Lock()
			n.starts = append(n.starts, p)
			n.mu.Unlock()
		},
		OnCallEnd: func() {
			n.mu.Lock()
			n.ends++
			n.mu.Unlock()
		},
		OnCallLogUpdate: func(log []calllog.Entry) {
			n.mu.Lock()
			n.logs = append(n.logs, log)
			n.mu.Unlock()
		},
	}
}

func (n *notifications) getStatuses() []Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Status(nil), n.statuses...)
}
