package voice

import (
	"context"
	"strings"
)

// Device log levels.
const (
	LogLevelDebug = "DEBUG"
	LogLevelError = "ERROR"
)

// Device places voice calls. Implementations wrap a concrete telephony SDK.
type Device interface {
	Connect(ctx context.Context, params map[string]string) (Call, error)
	OnError(fn func(*TransportError))
	Destroy()
}

// Call is one in-flight voice call.
type Call interface {
	SendDigits(digits string) error
	OnError(fn func(*TransportError))
	Disconnect()
}

// DeviceOptions are handed to a DeviceFactory.
type DeviceOptions struct {
	Token    string
	LogLevel string
	Sounds   map[string]string
}

// DeviceFactory builds a device from an access token.
type DeviceFactory func(ctx context.Context, opts DeviceOptions) (Device, error)

// SupportCheck reports whether the host can run a voice device.
type SupportCheck func() bool

// Sounds returns the device sound set served by the backend. DTMF tones
// are replaced with silence.
func Sounds(baseURL string) map[string]string {
	base := strings.TrimRight(baseURL, "/") + "/audio/"
	sounds := map[string]string{
		"incoming":   base + "didge1.wav",
		"outgoing":   base + "didge1.wav",
		"disconnect": base + "didge2.wav",
		"dtmfs":      base + "silence.wav",
		"dtmfh":      base + "silence.wav",
	}
	for d := '0'; d <= '9'; d++ {
		sounds["dtmf"+string(d)] = base + "silence.wav"
	}
	return sounds
}
