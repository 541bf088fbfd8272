package channel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeProvider is a minimal realtime provider speaking the subscription
// handshake over a websocket.
type fakeProvider struct {
	srv *httptest.Server

	ackDelay  time.Duration
	reject    bool
	fatalCode int

	stop chan struct{}

	mu       sync.Mutex
	conns    []*websocket.Conn
	writeMu  sync.Mutex
	received []frame
	closed   int
	notify   chan frame
}

type providerOption func(*fakeProvider)

func withAckDelay(d time.Duration) providerOption {
	return func(p *fakeProvider) { p.ackDelay = d }
}

func withReject() providerOption {
	return func(p *fakeProvider) { p.reject = true }
}

func withFatal(code int) providerOption {
	return func(p *fakeProvider) { p.fatalCode = code }
}

func newFakeProvider(t *testing.T, opts ...providerOption) *fakeProvider {
	t.Helper()
	p := &fakeProvider{stop: make(chan struct{}), notify: make(chan frame, 64)}
	for _, o := range opts {
		o(p)
	}
	p.srv = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(func() {
		close(p.stop)
		p.mu.Lock()
		for _, ws := range p.conns {
			ws.Close()
		}
		p.mu.Unlock()
		p.srv.Close()
	})
	return p
}

func (p *fakeProvider) candidate(appID string) Candidate {
	return Candidate{
		AppID:   appID,
		Cluster: "test",
		Key:     "key-" + appID,
		Host:    "ws" + strings.TrimPrefix(p.srv.URL, "http"),
	}
}

func (p *fakeProvider) handle(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	if p.fatalCode != 0 {
		p.write(ws, eventError, "", map[string]any{"code": p.fatalCode, "message": "over quota"})
		return
	}

	p.write(ws, eventConnectionEstablished, "", map[string]any{"socket_id": "123.456", "activity_timeout": 120})

	var sub frame
	if err := ws.ReadJSON(&sub); err != nil || sub.Event != eventSubscribe {
		return
	}
	var body struct {
		Auth    string `json:"auth"`
		Channel string `json:"channel"`
	}
	_ = json.Unmarshal(sub.payload(), &body)

	if p.ackDelay > 0 {
		select {
		case <-time.After(p.ackDelay):
		case <-p.stop:
			return
		}
	}
	if p.reject {
		p.write(ws, eventSubscriptionError, body.Channel, map[string]any{"type": "AuthError", "status": 403})
		return
	}
	p.mu.Lock()
	p.conns = append(p.conns, ws)
	p.mu.Unlock()
	p.write(ws, eventSubscriptionSucceeded, body.Channel, map[string]any{})

	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			p.mu.Lock()
			p.closed++
			p.mu.Unlock()
			return
		}
		if f.Event == eventPing {
			p.write(ws, eventPong, "", map[string]any{})
			continue
		}
		p.mu.Lock()
		p.received = append(p.received, f)
		p.mu.Unlock()
		p.notify <- f
	}
}

// write sends a frame with the payload double-encoded as the provider does.
func (p *fakeProvider) write(ws *websocket.Conn, event, channel string, data any) {
	inner, _ := json.Marshal(data)
	outer, _ := json.Marshal(string(inner))
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = ws.WriteJSON(frame{Event: event, Channel: channel, Data: outer})
}

// broadcast sends an event to every subscribed connection.
func (p *fakeProvider) broadcast(event, channel string, data any) {
	p.mu.Lock()
	conns := append([]*websocket.Conn(nil), p.conns...)
	p.mu.Unlock()
	for _, ws := range conns {
		p.write(ws, event, channel, data)
	}
}

// broadcastRaw writes msg verbatim to every subscribed connection.
func (p *fakeProvider) broadcastRaw(msg string) {
	p.mu.Lock()
	conns := append([]*websocket.Conn(nil), p.conns...)
	p.mu.Unlock()
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	for _, ws := range conns {
		_ = ws.WriteMessage(websocket.TextMessage, []byte(msg))
	}
}

func (p *fakeProvider) closedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakeProvider) subscribed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// waitFrame returns the next client frame or fails after timeout.
func (p *fakeProvider) waitFrame(t *testing.T, timeout time.Duration) frame {
	t.Helper()
	select {
	case f := <-p.notify:
		return f
	case <-time.After(timeout):
		t.Fatal("timed out waiting for client frame")
		return frame{}
	}
}

// fakeAuth is the backend authorization endpoint.
type fakeAuth struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []*http.Request
	forms    []map[string]string
	status   int
}

func newFakeAuth(t *testing.T) *fakeAuth {
	t.Helper()
	a := &fakeAuth{status: http.StatusOK}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pusher/auth" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		a.mu.Lock()
		a.requests = append(a.requests, r)
		a.forms = append(a.forms, map[string]string{
			"socket_id":    r.PostForm.Get("socket_id"),
			"channel_name": r.PostForm.Get("channel_name"),
		})
		status := a.status
		a.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"forbidden"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"auth":"key:signature"}`))
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *fakeAuth) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}
