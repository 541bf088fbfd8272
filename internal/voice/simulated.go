package voice

import (
	"context"
	"log"
	"maps"
	"sync"
)

// SimulatedDevice is an in-memory Device for demos and tests. It accepts
// every call unless ConnectErr is set and records what it was asked to do.
type SimulatedDevice struct {
	// ConnectErr, when set, is returned by every Connect.
	ConnectErr error

	mu        sync.Mutex
	opts      DeviceOptions
	params    []map[string]string
	calls     []*SimulatedCall
	onError   func(*TransportError)
	destroyed bool
}

// NewSimulatedDevice returns an empty simulated device.
func NewSimulatedDevice() *SimulatedDevice {
	return &SimulatedDevice{}
}

// Factory returns a DeviceFactory that always yields d.
func (d *SimulatedDevice) Factory() DeviceFactory {
	return func(_ context.Context, opts DeviceOptions) (Device, error) {
		d.mu.Lock()
		d.opts = opts
		d.destroyed = false
		d.mu.Unlock()
		return d, nil
	}
}

func (d *SimulatedDevice) Connect(ctx context.Context, params map[string]string) (Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.params = append(d.params, maps.Clone(params))
	if d.ConnectErr != nil {
		return nil, d.ConnectErr
	}
	call := &SimulatedCall{}
	d.calls = append(d.calls, call)
	log.Printf("voice: simulated call from %s", params["From"])
	return call, nil
}

func (d *SimulatedDevice) OnError(fn func(*TransportError)) {
	d.mu.Lock()
	d.onError = fn
	d.mu.Unlock()
}

func (d *SimulatedDevice) Destroy() {
	d.mu.Lock()
	d.destroyed = true
	d.mu.Unlock()
}

// EmitError raises a device-level transport error.
func (d *SimulatedDevice) EmitError(code int, description string) {
	d.mu.Lock()
	fn := d.onError
	d.mu.Unlock()
	if fn != nil {
		fn(&TransportError{Code: code, Description: description})
	}
}

// Options returns the options the device was built with.
func (d *SimulatedDevice) Options() DeviceOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opts
}

// Params returns the parameters of every Connect, in order.
func (d *SimulatedDevice) Params() []map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]map[string]string(nil), d.params...)
}

// LastCall returns the most recent call, or nil.
func (d *SimulatedDevice) LastCall() *SimulatedCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) == 0 {
		return nil
	}
	return d.calls[len(d.calls)-1]
}

// Destroyed reports whether Destroy was called since the last build.
func (d *SimulatedDevice) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

// SimulatedCall is the Call produced by SimulatedDevice.
type SimulatedCall struct {
	mu           sync.Mutex
	digits       []string
	onError      func(*TransportError)
	disconnected bool
}

func (c *SimulatedCall) SendDigits(digits string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnected {
		return ErrNoActiveCall
	}
	c.digits = append(c.digits, digits)
	return nil
}

func (c *SimulatedCall) OnError(fn func(*TransportError)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *SimulatedCall) Disconnect() {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

// EmitError raises a call-level transport error.
func (c *SimulatedCall) EmitError(code int, description string) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(&TransportError{Code: code, Description: description})
	}
}

// Digits returns every digit sequence sent on the call.
func (c *SimulatedCall) Digits() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.digits...)
}

// Disconnected reports whether the call was hung up.
func (c *SimulatedCall) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}
