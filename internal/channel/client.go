// Package channel implements the realtime control channel of a call session.
// It races the configured provider candidates, keeps the first one that
// completes a private channel subscription, and forwards its events.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Default timeouts.
const (
	DefaultAttemptTimeout     = 10 * time.Second
	DefaultUnavailableTimeout = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	Candidates      []Candidate
	Tenant          string
	Token           string
	CallerChannelID string
	BackendURL      string
	WAFToken        string

	// HTTPClient is used for channel authorization. Nil uses a client
	// with a 10s timeout.
	HTTPClient *http.Client
	// Dialer opens provider websockets. Nil uses websocket.DefaultDialer.
	Dialer *websocket.Dialer

	AttemptTimeout     time.Duration
	UnavailableTimeout time.Duration
}

// Handlers receive channel output. Both are optional and may be called from
// the connection's read goroutine.
type Handlers struct {
	OnEvent          func(name string, data json.RawMessage)
	OnConnectionLost func(reason string)
}

// Client owns at most one active provider connection.
type Client struct {
	opts    Options
	channel string
	auth    *Authorizer

	mu        sync.Mutex
	handlers  Handlers
	active    *conn
	watch     *watchdog
	candidate Candidate
	connected bool
	demo      bool
	gen       uint64
	abort     context.CancelFunc
}

// New creates a Client. It does not connect.
func New(opts Options) *Client {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	if opts.UnavailableTimeout <= 0 {
		opts.UnavailableTimeout = DefaultUnavailableTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		opts:    opts,
		channel: ChannelName(opts.Tenant, opts.Token, opts.CallerChannelID),
		auth: &Authorizer{
			BackendURL: opts.BackendURL,
			Tenant:     opts.Tenant,
			Token:      opts.Token,
			WAFToken:   opts.WAFToken,
			HTTPClient: opts.HTTPClient,
		},
	}
}

// Bind sets the event and connection-loss handlers.
func (c *Client) Bind(h Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// ChannelName returns the private channel this client subscribes to.
func (c *Client) ChannelName() string {
	return c.channel
}

// Connect races every candidate and returns the first one whose channel
// subscription is acknowledged. Losing attempts are closed before Connect
// returns. When every candidate carries placeholder credentials Connect
// succeeds at once without network I/O.
func (c *Client) Connect(ctx context.Context) (Candidate, error) {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return Candidate{}, ErrAlreadyConnected
	}
	gen := c.gen
	c.mu.Unlock()

	cands := c.opts.Candidates
	if len(cands) == 0 {
		return Candidate{}, fmt.Errorf("%w: no candidates configured", ErrChannelConnectionFailed)
	}

	if allPlaceholders(cands) {
		log.Printf("channel: placeholder credentials, simulating connection to %s", cands[0])
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen {
			return Candidate{}, fmt.Errorf("%w: %w", ErrChannelConnectionFailed, context.Canceled)
		}
		c.connected = true
		c.demo = true
		c.candidate = cands[0]
		return cands[0], nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.abort = cancel
	c.mu.Unlock()

	winner, err := c.race(ctx, cands)
	if err != nil {
		return Candidate{}, err
	}

	c.mu.Lock()
	c.abort = nil
	if c.gen != gen {
		c.mu.Unlock()
		winner.close()
		return Candidate{}, fmt.Errorf("%w: %w", ErrChannelConnectionFailed, context.Canceled)
	}
	w := newWatchdog(c.opts.UnavailableTimeout, c.lost)
	c.active = winner
	c.watch = w
	c.candidate = winner.cand
	c.connected = true
	c.mu.Unlock()

	winner.bind(c.deliver, w.observe)
	winner.start()
	log.Printf("channel: subscribed to %s via %s", c.channel, winner.cand)
	return winner.cand, nil
}

// race runs one attempt per candidate and keeps the first success.
func (c *Client) race(ctx context.Context, cands []Candidate) (*conn, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		conn *conn
		err  error
	}
	results := make(chan result, len(cands))
	for _, cand := range cands {
		cn := newConn(cand, c.channel, c.authorizer(cand), c.opts.Dialer, c.opts.AttemptTimeout)
		go func() {
			actx, acancel := context.WithTimeout(raceCtx, c.opts.AttemptTimeout)
			defer acancel()
			results <- result{conn: cn, err: cn.establish(actx)}
		}()
	}

	var winner *conn
	var errs []error
	for range cands {
		r := <-results
		switch {
		case r.err != nil:
			if winner == nil {
				errs = append(errs, r.err)
			}
			r.conn.close()
		case winner == nil:
			winner = r.conn
			cancel()
		default:
			r.conn.close()
		}
	}
	if winner == nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelConnectionFailed, errors.Join(errs...))
	}
	return winner, nil
}

func (c *Client) authorizer(cand Candidate) authorizeFunc {
	return func(ctx context.Context, socketID string) (string, error) {
		return c.auth.Authorize(ctx, cand.AppID, socketID, c.channel)
	}
}

func (c *Client) deliver(name string, data json.RawMessage) {
	if name == eventSubscriptionError {
		c.mu.Lock()
		w := c.watch
		c.mu.Unlock()
		if w != nil {
			w.lose(ReasonSubscription)
		}
		return
	}
	if internal(name) {
		return
	}
	c.mu.Lock()
	fn := c.handlers.OnEvent
	c.mu.Unlock()
	if fn != nil {
		fn(name, data)
	}
}

func (c *Client) lost(reason string) {
	log.Printf("channel: connection lost on %s: %s", c.channel, reason)
	c.mu.Lock()
	fn := c.handlers.OnConnectionLost
	c.mu.Unlock()
	if fn != nil {
		fn(reason)
	}
}

// Trigger publishes a client event on the active channel. The client- prefix
// is added when missing. In demo mode the event is only logged.
func (c *Client) Trigger(ctx context.Context, event string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !strings.HasPrefix(event, ClientEventPrefix) {
		event = ClientEventPrefix + event
	}

	c.mu.Lock()
	active := c.active
	demo := c.demo
	c.mu.Unlock()

	if demo {
		log.Printf("channel: demo mode, not publishing %s", event)
		return nil
	}
	if active == nil {
		return ErrNotConnected
	}
	return active.publish(event, data)
}

// Connected reports whether the client holds a channel.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Candidate returns the winning candidate of the current connection.
func (c *Client) Candidate() (Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.candidate, c.connected
}

// Disconnect stops the loss watchdog, unsubscribes and closes the active
// connection. It is idempotent and also aborts a Connect in progress.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	abort := c.abort
	c.abort = nil
	w := c.watch
	active := c.active
	c.watch = nil
	c.active = nil
	c.connected = false
	c.demo = false
	c.candidate = Candidate{}
	c.mu.Unlock()

	if abort != nil {
		abort()
	}
	if w != nil {
		w.stop()
	}
	if active != nil {
		active.close()
	}
}
