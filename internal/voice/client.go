// Package voice wraps the voice transport device and its single in-flight
// call for a call session.
package voice

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/zulandar/autodialer/internal/channel"
	"github.com/zulandar/autodialer/internal/models"
)

// Transport error codes that mean the media connection is gone.
var connectionLossCodes = []int{31000, 31005, 31009, 53000, 53405}

const (
	codeMicrophoneDenied = 31401
	codeAudioHardware    = 31402
)

var digitsPattern = regexp.MustCompile(`^[0-9*#]+$`)

// Options configures a Client.
type Options struct {
	BackendURL   string
	CampaignID   string
	WAFToken     string
	SoundBaseURL string
	Debug        bool

	// Factory builds the device. Nil means no device is available on this
	// host and Initialize fails with ErrUnsupportedPlatform.
	Factory DeviceFactory
	// Supported is consulted before anything else. Nil means supported.
	Supported SupportCheck
	Tokens    *TokenSource
}

// Handlers receive classified transport errors.
type Handlers struct {
	OnError          func(message string)
	OnConnectionLost func(message string)
}

// Client owns one device and at most one call.
type Client struct {
	opts   Options
	tokens *TokenSource

	mu        sync.Mutex
	handlers  Handlers
	device    Device
	call      Call
	cred      *Credential
	lost      bool
	destroyed bool
}

// New creates a Client. It does not touch the network.
func New(opts Options) *Client {
	tokens := opts.Tokens
	if tokens == nil {
		tokens = &TokenSource{BackendURL: opts.BackendURL, WAFToken: opts.WAFToken}
	}
	if opts.SoundBaseURL == "" {
		opts.SoundBaseURL = opts.BackendURL
	}
	return &Client{opts: opts, tokens: tokens}
}

// Bind sets the error handlers.
func (c *Client) Bind(h Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// Initialize checks platform support, fetches an access token for a fresh
// identity and builds the device.
func (c *Client) Initialize(ctx context.Context) error {
	if c.opts.Supported != nil && !c.opts.Supported() {
		return ErrUnsupportedPlatform
	}
	if c.opts.Factory == nil {
		return fmt.Errorf("%w: no voice device configured", ErrUnsupportedPlatform)
	}

	now := time.Now()
	cred, err := c.tokens.Fetch(ctx, NewIdentity(now), c.opts.CampaignID)
	if err != nil {
		return err
	}
	if cred.Expired(now) {
		return &CredentialError{Err: fmt.Errorf("access token expired at %s", cred.ExpiresAt.Format(time.RFC3339))}
	}

	level := LogLevelError
	if c.opts.Debug {
		level = LogLevelDebug
	}
	dev, err := c.opts.Factory(ctx, DeviceOptions{
		Token:    cred.Token,
		LogLevel: level,
		Sounds:   Sounds(c.opts.SoundBaseURL),
	})
	if err != nil {
		return fmt.Errorf("voice: create device: %w", err)
	}
	dev.OnError(c.handleError)

	c.mu.Lock()
	old := c.device
	c.device = dev
	c.call = nil
	c.cred = cred
	c.lost = false
	c.destroyed = false
	c.mu.Unlock()

	if old != nil && old != dev {
		old.Destroy()
	}
	return nil
}

// Connect places the outbound call for profile, correlated with the active
// channel candidate.
func (c *Client) Connect(ctx context.Context, profile models.CallerProfile, cand channel.Candidate) error {
	c.mu.Lock()
	dev := c.device
	c.mu.Unlock()
	if dev == nil {
		return fmt.Errorf("%w: device not initialized", ErrCallSetup)
	}

	call, err := dev.Connect(ctx, CallParams(profile, cand))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCallSetup, err)
	}
	call.OnError(c.handleError)

	c.mu.Lock()
	if c.device != dev {
		c.mu.Unlock()
		call.Disconnect()
		return fmt.Errorf("%w: device destroyed during connect", ErrCallSetup)
	}
	c.call = call
	c.mu.Unlock()
	return nil
}

// CallParams builds the call metadata that lets the backend match the
// voice leg to the channel leg.
func CallParams(p models.CallerProfile, cand channel.Candidate) map[string]string {
	params := map[string]string{
		"From":            p.Phone,
		"name":            p.Name,
		"email":           p.Email,
		"callerChannelId": p.CallerChannelID,
		"pusherAppId":     cand.AppID,
		"call_type":       models.CallTypeWebRTC,
	}
	if p.Tenant != "" {
		params["tenant"] = p.Tenant
	}
	if p.Token != "" {
		params["token"] = p.Token
	}
	if p.ReferralCode != "" {
		params["referralCode"] = p.ReferralCode
	}
	return params
}

// SendDigits plays a DTMF sequence on the active call.
func (c *Client) SendDigits(seq string) error {
	if !digitsPattern.MatchString(seq) {
		return fmt.Errorf("%w: %q", ErrInvalidDigits, seq)
	}
	c.mu.Lock()
	call := c.call
	c.mu.Unlock()
	if call == nil {
		return ErrNoActiveCall
	}
	if err := call.SendDigits(seq); err != nil {
		return fmt.Errorf("voice: send digits: %w", err)
	}
	return nil
}

// HasActiveCall reports whether a call is connected.
func (c *Client) HasActiveCall() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call != nil
}

// Classify maps a transport error to a user-facing message and reports
// whether it means the connection is lost.
func Classify(e *TransportError) (message string, connectionLost bool) {
	switch {
	case slices.Contains(connectionLossCodes, e.Code):
		return genericMessage(e), true
	case e.Code == codeMicrophoneDenied:
		return "Permission is denied to your microphone. Please accept the permission if prompted, or update the permissions in your web browser.", false
	case e.Code == codeAudioHardware:
		return "Connection lost to your audio hardware. Check that your microphone and speakers are connected.", false
	default:
		return genericMessage(e), false
	}
}

func genericMessage(e *TransportError) string {
	desc := e.Description
	if desc == "" {
		desc = "Unknown error"
	}
	return fmt.Sprintf("Telephony error %d: %s. Please report an issue if this is a persistent problem.", e.Code, desc)
}

// handleError reports the first transport error of a session, then tears
// the device down. Later errors are dropped.
func (c *Client) handleError(e *TransportError) {
	c.mu.Lock()
	if c.lost || c.destroyed {
		c.mu.Unlock()
		return
	}
	c.lost = true
	h := c.handlers
	c.mu.Unlock()

	log.Printf("voice: %v", e)
	msg, lost := Classify(e)
	if lost {
		if h.OnConnectionLost != nil {
			h.OnConnectionLost(msg)
		}
	} else if h.OnError != nil {
		h.OnError(msg)
	}
	c.Destroy()
}

// Destroy hangs up the call and releases the device. It is idempotent.
func (c *Client) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	call, dev := c.call, c.device
	c.call = nil
	c.device = nil
	c.mu.Unlock()

	if call != nil {
		call.Disconnect()
	}
	if dev != nil {
		dev.Destroy()
	}
}
