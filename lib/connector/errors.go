package connector

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is returned when a Request lacks its service URL or
// conversation id.
var ErrInvalidRequest = errors.New("invalid delivery request")

// ErrUntrustedServiceURL is returned when a Request names a service URL
// outside the allowed hosts. No token is fetched for it.
var ErrUntrustedServiceURL = errors.New("untrusted service url")

// FailureKind classifies a failed delivery.
type FailureKind string

const (
	// KindStatus means the connector answered outside 200-299.
	KindStatus FailureKind = "status"
	// KindNoResponse means no response was received at all.
	KindNoResponse FailureKind = "no_response"
)

// DeliveryError describes a reply the connector did not accept.
type DeliveryError struct {
	Kind          FailureKind
	URL           string
	StatusCode    int
	AuthChallenge string
	Body          string
	Err           error
}

func (e *DeliveryError) Error() string {
	if e.Kind == KindNoResponse {
		return fmt.Sprintf("delivery to %s got no response: %v", e.URL, e.Err)
	}
	msg := fmt.Sprintf("delivery to %s failed with status %d", e.URL, e.StatusCode)
	if e.AuthChallenge != "" {
		msg += fmt.Sprintf(" (WWW-Authenticate: %s)", e.AuthChallenge)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
