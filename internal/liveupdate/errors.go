package liveupdate

import (
	"errors"
	"fmt"
)

// Failure classes. Neither is ever returned to a Channel's caller: transport
// failures are retried and malformed events are dropped.
var (
	ErrMalformedEvent = errors.New("MALFORMED_EVENT")
	ErrTransport      = errors.New("TRANSPORT_ERROR")
)

// MalformedEventError carries the payload that failed to parse.
type MalformedEventError struct {
	Raw    []byte
	Reason error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("%v: %v", ErrMalformedEvent, e.Reason)
}

func (e *MalformedEventError) Unwrap() error {
	return ErrMalformedEvent
}

// TransportError describes a refused, dropped or rejected connection.
type TransportError struct {
	URL        string
	StatusCode int
	Reason     error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v: %s: status %d: %v", ErrTransport, e.URL, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %v", ErrTransport, e.URL, e.Reason)
}

func (e *TransportError) Unwrap() error {
	return ErrTransport
}
