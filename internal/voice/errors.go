package voice

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedPlatform is returned by Initialize when no voice device
	// can run on this host.
	ErrUnsupportedPlatform = errors.New("voice: platform is not supported, use a recent version of Firefox, Chrome, Edge or Safari")

	// ErrCredentialFetch matches every *CredentialError.
	ErrCredentialFetch = errors.New("voice: failed to obtain access token from backend")

	// ErrCallSetup is returned when the device rejects a connection request.
	ErrCallSetup = errors.New("voice: call setup failed")

	// ErrNoActiveCall is returned when sending digits without a connected call.
	ErrNoActiveCall = errors.New("voice: no active call")

	// ErrInvalidDigits is returned for digit sequences outside 0-9, * and #.
	ErrInvalidDigits = errors.New("voice: invalid digit sequence")
)

// CredentialError describes a failed access token request.
type CredentialError struct {
	Status int
	Body   string
	Err    error
}

func (e *CredentialError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%v: status %d: %v", ErrCredentialFetch, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%v: status %d: %s", ErrCredentialFetch, e.Status, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", ErrCredentialFetch, e.Err)
	default:
		return ErrCredentialFetch.Error()
	}
}

func (e *CredentialError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCredentialFetch) hold for any CredentialError.
func (e *CredentialError) Is(target error) bool { return target == ErrCredentialFetch }

// TransportError is an error raised by the voice device or an active call.
type TransportError struct {
	Code        int
	Description string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("voice: transport error %d: %s", e.Code, e.Description)
}
