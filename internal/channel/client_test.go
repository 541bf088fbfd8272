package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	data   []json.RawMessage
	losses []string
	got    chan string
	lost   chan string
}

func newRecorder() *recorder {
	return &recorder{got: make(chan string, 32), lost: make(chan string, 4)}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnEvent: func(name string, data json.RawMessage) {
			r.mu.Lock()
			r.events = append(r.events, name)
			r.data = append(r.data, data)
			r.mu.Unlock()
			r.got <- name
		},
		OnConnectionLost: func(reason string) {
			r.mu.Lock()
			r.losses = append(r.losses, reason)
			r.mu.Unlock()
			r.lost <- reason
		},
	}
}

func (r *recorder) waitEvent(t *testing.T) string {
	t.Helper()
	select {
	case name := <-r.got:
		return name
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

func (r *recorder) waitLoss(t *testing.T) string {
	t.Helper()
	select {
	case reason := <-r.lost:
		return reason
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection loss")
		return ""
	}
}

func newTestClient(t *testing.T, auth *fakeAuth, cands ...Candidate) *Client {
	t.Helper()
	c := New(Options{
		Candidates:         cands,
		Tenant:             "acme",
		Token:              "tok",
		CallerChannelID:    "caller-1",
		BackendURL:         auth.srv.URL,
		WAFToken:           "waf",
		AttemptTimeout:     2 * time.Second,
		UnavailableTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(c.Disconnect)
	return c
}

func TestConnect_FastestSubscriptionWins(t *testing.T) {
	auth := newFakeAuth(t)
	slow1 := newFakeProvider(t, withAckDelay(time.Second))
	fast := newFakeProvider(t)
	slow3 := newFakeProvider(t, withAckDelay(time.Second))

	c := newTestClient(t, auth, slow1.candidate("1"), fast.candidate("2"), slow3.candidate("3"))
	rec := newRecorder()
	c.Bind(rec.handlers())

	start := time.Now()
	got, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got.AppID != "2" {
		t.Errorf("winner = %q, want 2", got.AppID)
	}
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Errorf("Connect took %v, losers were not cancelled", elapsed)
	}
	if !c.Connected() {
		t.Error("Connected() = false after Connect")
	}
	if slow1.subscribed() != 0 || slow3.subscribed() != 0 {
		t.Errorf("losing candidates subscribed: %d, %d", slow1.subscribed(), slow3.subscribed())
	}
	if auth.count() == 0 {
		t.Error("no authorization request reached the backend")
	}

	fast.broadcast("call_started", c.ChannelName(), map[string]any{"message": "hi"})
	if name := rec.waitEvent(t); name != "call_started" {
		t.Errorf("event = %q, want call_started", name)
	}
}

func TestConnect_AllAttemptsFail(t *testing.T) {
	auth := newFakeAuth(t)
	a := newFakeProvider(t, withReject())
	b := newFakeProvider(t, withReject())

	c := newTestClient(t, auth, a.candidate("1"), b.candidate("2"))
	_, err := c.Connect(context.Background())
	if !errors.Is(err, ErrChannelConnectionFailed) {
		t.Fatalf("err = %v, want ErrChannelConnectionFailed", err)
	}
	if !errors.Is(err, ErrChannelSubscription) {
		t.Errorf("err = %v, want to wrap ErrChannelSubscription", err)
	}
	if c.Connected() {
		t.Error("Connected() = true after failed Connect")
	}
}

func TestConnect_AttemptTimeout(t *testing.T) {
	auth := newFakeAuth(t)
	p := newFakeProvider(t, withAckDelay(5*time.Second))

	c := New(Options{
		Candidates:     []Candidate{p.candidate("1")},
		Tenant:         "acme",
		Token:          "tok",
		BackendURL:     auth.srv.URL,
		AttemptTimeout: 150 * time.Millisecond,
	})
	defer c.Disconnect()

	start := time.Now()
	_, err := c.Connect(context.Background())
	if !errors.Is(err, ErrChannelConnectionFailed) {
		t.Fatalf("err = %v, want ErrChannelConnectionFailed", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want to wrap context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Connect took %v, want bounded by attempt timeout", elapsed)
	}
}

func TestConnect_AuthRejected(t *testing.T) {
	auth := newFakeAuth(t)
	auth.status = 403
	p := newFakeProvider(t)

	c := newTestClient(t, auth, p.candidate("1"))
	_, err := c.Connect(context.Background())
	if !errors.Is(err, ErrChannelSubscription) {
		t.Fatalf("err = %v, want ErrChannelSubscription", err)
	}
}

func TestConnect_FatalProviderError(t *testing.T) {
	auth := newFakeAuth(t)
	p := newFakeProvider(t, withFatal(4001))

	c := newTestClient(t, auth, p.candidate("1"))
	_, err := c.Connect(context.Background())
	var pe providerError
	if !errors.As(err, &pe) || pe.Code != 4001 {
		t.Fatalf("err = %v, want provider error 4001", err)
	}
}

func TestConnect_PlaceholderCredentials(t *testing.T) {
	c := New(Options{
		Candidates: []Candidate{
			{AppID: "default", Cluster: "us2", Key: "k", Host: "ws://127.0.0.1:1"},
			{AppID: "9", Cluster: "eu", Key: "default-key", Host: "ws://127.0.0.1:1"},
		},
		Tenant: "acme",
		Token:  "tok",
	})
	got, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got.AppID != "default" {
		t.Errorf("candidate = %+v, want the first placeholder", got)
	}
	if err := c.Trigger(context.Background(), "caller_response_1", map[string]string{"response": "1"}); err != nil {
		t.Errorf("Trigger in demo mode: %v", err)
	}
	c.Disconnect()
	if c.Connected() {
		t.Error("Connected() = true after Disconnect")
	}
}

func TestConnect_AlreadyConnected(t *testing.T) {
	c := New(Options{Candidates: []Candidate{{AppID: "default", Key: "default-key"}}})
	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect err = %v, want ErrAlreadyConnected", err)
	}
}

func TestConnect_NoCandidates(t *testing.T) {
	c := New(Options{})
	if _, err := c.Connect(context.Background()); !errors.Is(err, ErrChannelConnectionFailed) {
		t.Errorf("err = %v, want ErrChannelConnectionFailed", err)
	}
}

func TestEvents_ArrivalOrderWithoutInternal(t *testing.T) {
	auth := newFakeAuth(t)
	p := newFakeProvider(t)
	c := newTestClient(t, auth, p.candidate("1"))
	rec := newRecorder()
	c.Bind(rec.handlers())
	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ch := c.ChannelName()
	p.broadcast("pusher:cache_miss", ch, map[string]any{})
	p.broadcast("call_started", ch, map[string]any{"message": "one"})
	p.broadcast("pusher_internal:member_added", ch, map[string]any{})
	p.broadcast("call_in_progress", ch, map[string]any{"message": "two"})
	p.broadcast("call_survey", "private-other", map[string]any{})
	p.broadcast("call_completed", ch, map[string]any{"message": "three"})

	want := []string{"call_started", "call_in_progress", "call_completed"}
	for i, w := range want {
		if got := rec.waitEvent(t); got != w {
			t.Errorf("event[%d] = %q, want %q", i, got, w)
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var payload map[string]string
	if err := json.Unmarshal(rec.data[0], &payload); err != nil {
		t.Fatalf("payload not unwrapped: %s", rec.data[0])
	}
	if payload["message"] != "one" {
		t.Errorf("payload message = %q, want one", payload["message"])
	}
}

func TestTrigger_PublishesClientEvent(t *testing.T) {
	auth := newFakeAuth(t)
	p := newFakeProvider(t)
	c := newTestClient(t, auth, p.candidate("1"))
	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	err := c.Trigger(context.Background(), "caller_response_1_ab", map[string]string{"response": "2"})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	f := p.waitFrame(t, 2*time.Second)
	if f.Event != "client-caller_response_1_ab" {
		t.Errorf("event = %q, want client- prefix", f.Event)
	}
	if f.Channel != c.ChannelName() {
		t.Errorf("channel = %q, want %q", f.Channel, c.ChannelName())
	}
}

func TestTrigger_NotConnected(t *testing.T) {
	c := New(Options{Candidates: []Candidate{{AppID: "1", Key: "k"}}})
	if err := c.Trigger(context.Background(), "x", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestConnectionLoss_SubscriptionError(t *testing.T) {
	auth := newFakeAuth(t)
	p := newFakeProvider(t)
	c := newTestClient(t, auth, p.candidate("1"))
	rec := newRecorder()
	c.Bind(rec.handlers())
	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	p.broadcast(eventSubscriptionError, c.ChannelName(), map[string]any{"status": 401})
	p.broadcast(eventSubscriptionError, c.ChannelName(), map[string]any{"status": 401})
	if reason := rec.waitLoss(t); reason != ReasonSubscription {
		t.Errorf("reason = %q, want %q", reason, ReasonSubscription)
	}
	select {
	case extra := <-rec.lost:
		t.Errorf("loss reported twice, second reason %q", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnectionLoss_FatalErrorAfterConnect(t *testing.T) {
	auth := newFakeAuth(t)
	p := newFakeProvider(t)
	c := newTestClient(t, auth, p.candidate("1"))
	rec := newRecorder()
	c.Bind(rec.handlers())
	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	p.broadcast(eventError, "", map[string]any{"code": 4004, "message": "app disabled"})
	if reason := rec.waitLoss(t); reason != ReasonFailed {
		t.Errorf("reason = %q, want %q", reason, ReasonFailed)
	}
}

func TestReconnect_ClosesDroppedSocket(t *testing.T) {
	auth := newFakeAuth(t)
	p := newFakeProvider(t)
	c := New(Options{
		Candidates:         []Candidate{p.candidate("1")},
		Tenant:             "acme",
		Token:              "tok",
		CallerChannelID:    "caller-1",
		BackendURL:         auth.srv.URL,
		AttemptTimeout:     2 * time.Second,
		UnavailableTimeout: 10 * time.Second,
	})
	t.Cleanup(c.Disconnect)
	rec := newRecorder()
	c.Bind(rec.handlers())
	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// A frame that decodes with the wrong shape ends the read loop.
	p.broadcastRaw(`{"event":5}`)

	waitUntil(t, 500*time.Millisecond, func() bool { return p.closedCount() == 1 })
	waitUntil(t, 3*time.Second, func() bool { return p.subscribed() == 2 })

	p.broadcast("call_started", c.ChannelName(), map[string]any{})
	if got := rec.waitEvent(t); got != "call_started" {
		t.Errorf("event after reconnect = %q, want call_started", got)
	}
	if got := p.closedCount(); got != 1 {
		t.Errorf("closed sockets = %d, want 1", got)
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDisconnect_UnsubscribesAndIsIdempotent(t *testing.T) {
	auth := newFakeAuth(t)
	p := newFakeProvider(t)
	c := newTestClient(t, auth, p.candidate("1"))

	c.Disconnect() // before Connect
	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c.Disconnect()
	c.Disconnect()

	f := p.waitFrame(t, 2*time.Second)
	if f.Event != eventUnsubscribe {
		t.Errorf("frame = %q, want %q", f.Event, eventUnsubscribe)
	}
	if c.Connected() {
		t.Error("Connected() = true after Disconnect")
	}
	if err := c.Trigger(context.Background(), "x", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Trigger after Disconnect err = %v, want ErrNotConnected", err)
	}
}

func TestDisconnect_AbortsConnect(t *testing.T) {
	auth := newFakeAuth(t)
	p := newFakeProvider(t, withAckDelay(5*time.Second))
	c := newTestClient(t, auth, p.candidate("1"))

	done := make(chan error, 1)
	go func() {
		_, err := c.Connect(context.Background())
		done <- err
	}()
	time.Sleep(100 * time.Millisecond)
	c.Disconnect()

	select {
	case err := <-done:
		if !errors.Is(err, ErrChannelConnectionFailed) {
			t.Errorf("err = %v, want ErrChannelConnectionFailed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return after Disconnect")
	}
}
