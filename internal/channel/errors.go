package channel

import "errors"

var (
	// ErrChannelConnectionFailed is returned by Connect when no candidate
	// produced a subscribed channel.
	ErrChannelConnectionFailed = errors.New("channel: failed to connect to messaging service")

	// ErrChannelSubscription marks a rejected channel authorization or
	// subscription.
	ErrChannelSubscription = errors.New("channel: subscription error")

	// ErrNotConnected is returned when publishing without an active channel.
	ErrNotConnected = errors.New("channel: not connected")

	// ErrAlreadyConnected is returned by Connect on a client that already
	// holds an active channel.
	ErrAlreadyConnected = errors.New("channel: already connected")
)
