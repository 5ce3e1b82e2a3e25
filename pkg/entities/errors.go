package entities

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConfigurationIncomplete means a required credential field is still missing.
	ErrConfigurationIncomplete = errors.New("configuration incomplete")
	// ErrTransportAuthExpired is reported by the stream when the server rejects the token.
	ErrTransportAuthExpired = errors.New("stream authorization expired: 401 unauthorized")
	// ErrMalformedPayload marks an unparsable or wrong-shaped bus or stream payload.
	ErrMalformedPayload = errors.New("malformed payload")
)

// AuthError is returned when the sign-in exchange does not yield a token.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}
