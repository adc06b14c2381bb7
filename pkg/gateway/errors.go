package gateway

import (
	"fmt"

	"github.com/time7/tagsync/pkg/config"
)

// ErrMissingBaseURL is returned by every call on a client built without a
// base URL. It is a *config.Error and is never retried.
var ErrMissingBaseURL error = &config.Error{Key: "GATEWAY_URL", Reason: "is not set"}

// Error is the single error type for anything that went wrong talking to the
// gateway: a non-2xx response, a transport failure or an undecodable body.
type Error struct {
	// StatusCode is zero when no response was received.
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("Gateway error: %v", e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("Gateway error: %d - %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("Gateway error: %d", e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}
