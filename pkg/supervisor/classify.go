package supervisor

import (
	"strings"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/pkg/errors"
)

// IsAuthorizationError reports whether a stream error means the token was rejected.
// The transport exposes no structured code, so the error text is inspected.
func IsAuthorizationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, entities.ErrTransportAuthExpired) {
		return true
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "401") || strings.Contains(text, "unauthorized")
}
