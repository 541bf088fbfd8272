package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the lifecycle state of a provider connection.
type State string

const (
	StateInitialized  State = "initialized"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateUnavailable  State = "unavailable"
	StateFailed       State = "failed"
	StateDisconnected State = "disconnected"
)

const (
	// defaultActivityTimeout is used until the provider announces its own.
	defaultActivityTimeout = 120 * time.Second
	// pongTimeout bounds the wait for any frame after a ping.
	pongTimeout = 30 * time.Second
	// writeTimeout bounds a single websocket write.
	writeTimeout = 10 * time.Second
	// baseReconnectDelay is the first reconnection delay.
	baseReconnectDelay = time.Second
	// maxReconnectDelay caps the exponential reconnection delay.
	maxReconnectDelay = 10 * time.Second
)

// authorizeFunc signs a subscription for the given socket.
type authorizeFunc func(ctx context.Context, socketID string) (string, error)

// conn is one websocket connection to a provider, subscribed to a single
// private channel. It reconnects on transient drops until closed.
type conn struct {
	cand           Candidate
	channel        string
	authorize      authorizeFunc
	dialer         *websocket.Dialer
	attemptTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	ws       *websocket.Conn
	socketID string
	activity time.Duration
	onFrame  func(event string, data json.RawMessage)
	onState  func(State)
	closed   bool

	writeMu sync.Mutex
}

func newConn(cand Candidate, channelName string, authorize authorizeFunc, dialer *websocket.Dialer, attemptTimeout time.Duration) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &conn{
		cand:           cand,
		channel:        channelName,
		authorize:      authorize,
		dialer:         dialer,
		attemptTimeout: attemptTimeout,
		ctx:            ctx,
		cancel:         cancel,
		activity:       defaultActivityTimeout,
	}
}

// establish dials the provider and completes the subscription handshake.
// Cancelling ctx aborts the attempt and closes the socket.
func (c *conn) establish(ctx context.Context) error {
	ws, _, err := c.dialer.DialContext(ctx, c.cand.socketURL(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cand, err)
	}

	release := context.AfterFunc(ctx, func() { ws.Close() })
	err = c.handshake(ctx, ws)
	if !release() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		ws.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("subscribe %s: %w", c.cand, ctxErr)
		}
		return fmt.Errorf("subscribe %s: %w", c.cand, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		ws.Close()
		return fmt.Errorf("subscribe %s: %w", c.cand, ErrNotConnected)
	}
	c.ws = ws
	return nil
}

func (c *conn) handshake(ctx context.Context, ws *websocket.Conn) error {
	f, err := readFrame(ws)
	if err != nil {
		return err
	}
	if f.Event == eventError {
		return decodeProviderError(f)
	}
	if f.Event != eventConnectionEstablished {
		return fmt.Errorf("unexpected %q before connection_established", f.Event)
	}
	var ce connectionEstablished
	if err := json.Unmarshal(f.payload(), &ce); err != nil {
		return fmt.Errorf("decode connection_established: %w", err)
	}
	if ce.SocketID == "" {
		return fmt.Errorf("connection_established without socket_id")
	}

	c.mu.Lock()
	c.socketID = ce.SocketID
	if ce.ActivityTimeout > 0 {
		c.activity = min(time.Duration(ce.ActivityTimeout)*time.Second, defaultActivityTimeout)
	}
	c.mu.Unlock()

	auth, err := c.authorize(ctx, ce.SocketID)
	if err != nil {
		return err
	}
	if err := c.writeTo(ws, eventSubscribe, "", map[string]string{"auth": auth, "channel": c.channel}); err != nil {
		return err
	}

	for {
		f, err := readFrame(ws)
		if err != nil {
			return err
		}
		switch f.Event {
		case eventSubscriptionSucceeded:
			if f.Channel == c.channel {
				return nil
			}
		case eventSubscriptionError:
			return fmt.Errorf("%w: %s", ErrChannelSubscription, string(f.payload()))
		case eventError:
			return decodeProviderError(f)
		case eventPing:
			if err := c.writeTo(ws, eventPong, "", struct{}{}); err != nil {
				return err
			}
		}
	}
}

// bind attaches the delivery and state handlers. Frames read before bind
// are dropped.
func (c *conn) bind(onFrame func(string, json.RawMessage), onState func(State)) {
	c.mu.Lock()
	c.onFrame = onFrame
	c.onState = onState
	c.mu.Unlock()
}

// start runs the read loop until the connection is closed or fails.
func (c *conn) start() {
	go c.run()
}

func (c *conn) run() {
	for {
		err := c.readLoop()
		if c.isClosed() {
			return
		}
		var pe providerError
		if errors.As(err, &pe) && pe.fatal() {
			log.Printf("channel: %s failed: %v", c.cand, pe)
			c.setState(StateFailed)
			return
		}
		log.Printf("channel: %s dropped: %v", c.cand, err)
		c.dropSocket()
		c.setState(StateUnavailable)
		if !c.reconnect() {
			return
		}
		c.setState(StateConnected)
	}
}

// dropSocket closes the socket of a failed read loop so reconnect can
// replace it.
func (c *conn) dropSocket() {
	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
}

func (c *conn) reconnect() bool {
	for attempt := 0; ; attempt++ {
		delay := min(baseReconnectDelay<<attempt, maxReconnectDelay)
		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(c.ctx, c.attemptTimeout)
		err := c.establish(ctx)
		cancel()
		if err == nil {
			return true
		}
		if c.isClosed() {
			return false
		}
		var pe providerError
		if errors.As(err, &pe) && pe.fatal() {
			log.Printf("channel: %s refused reconnection: %v", c.cand, pe)
			c.setState(StateFailed)
			return false
		}
		log.Printf("channel: reconnect %s (attempt %d): %v", c.cand, attempt+1, err)
	}
}

func (c *conn) readLoop() error {
	c.mu.Lock()
	ws := c.ws
	activity := c.activity
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	done := make(chan struct{})
	defer close(done)
	go c.keepAlive(ws, activity, done)

	for {
		if err := ws.SetReadDeadline(time.Now().Add(activity + pongTimeout)); err != nil {
			return err
		}
		f, err := readFrame(ws)
		if err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				log.Printf("channel: %s: skipping malformed frame: %v", c.cand, err)
				continue
			}
			return err
		}

		switch f.Event {
		case eventPing:
			if err := c.writeTo(ws, eventPong, "", struct{}{}); err != nil {
				return err
			}
			continue
		case eventPong, eventSubscriptionSucceeded:
			continue
		case eventError:
			pe := decodeProviderError(f)
			if pe.fatal() {
				ws.Close()
				return pe
			}
			log.Printf("channel: %s: %v", c.cand, pe)
			continue
		}
		if f.Channel != "" && f.Channel != c.channel {
			continue
		}
		c.deliver(f.Event, f.payload())
	}
}

// keepAlive pings the provider after each idle activity period.
func (c *conn) keepAlive(ws *websocket.Conn, every time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeTo(ws, eventPing, "", struct{}{}); err != nil {
				return
			}
		}
	}
}

func (c *conn) deliver(event string, data json.RawMessage) {
	c.mu.Lock()
	fn := c.onFrame
	c.mu.Unlock()
	if fn != nil {
		fn(event, data)
	}
}

func (c *conn) setState(s State) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// publish sends an event on the subscribed channel.
func (c *conn) publish(event string, data any) error {
	c.mu.Lock()
	ws := c.ws
	closed := c.closed
	c.mu.Unlock()
	if ws == nil || closed {
		return ErrNotConnected
	}
	return c.writeTo(ws, event, c.channel, data)
}

func (c *conn) writeTo(ws *websocket.Conn, event, channel string, data any) error {
	msg, err := encodeFrame(event, channel, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("channel: set write deadline: %w", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("channel: write %s: %w", event, err)
	}
	return nil
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// close unbinds all handlers, unsubscribes and closes the socket. It does
// not wait for the read loop, so it is safe to call from a handler.
func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ws := c.ws
	c.onFrame = nil
	c.onState = nil
	c.mu.Unlock()

	c.cancel()
	if ws == nil {
		return
	}
	_ = c.writeTo(ws, eventUnsubscribe, "", map[string]string{"channel": c.channel})
	c.writeMu.Lock()
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(500*time.Millisecond))
	c.writeMu.Unlock()
	_ = ws.Close()
}

func readFrame(ws *websocket.Conn) (frame, error) {
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return frame{}, err
	}
	var f frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

func decodeProviderError(f frame) providerError {
	var pe providerError
	if err := json.Unmarshal(f.payload(), &pe); err != nil {
		pe.Message = string(f.payload())
	}
	return pe
}
