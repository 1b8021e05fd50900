package mux

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by calls issued after the connection terminated.
	// It wraps the termination cause, so errors.Is works for both.
	ErrClosed = errors.New("mux: connection closed")
	// ErrConnClosed is the termination cause when the peer closed the transport cleanly.
	ErrConnClosed = errors.New("mux: transport closed by peer")
	// ErrCancelled matches every *CancelledError.
	ErrCancelled = errors.New("mux: request cancelled")
	// ErrSinkClosed is the termination cause when a notification arrives after
	// the consumer called CloseNotifications.
	ErrSinkClosed = errors.New("mux: notification sink closed")

	errNotificationOverflow = errors.New("mux: notification queue full")
)

// TransportError reports a failure to encode, send or receive a frame.
type TransportError struct {
	Op  string // "encode", "send" or "recv"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mux: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError is an error reply sent by the peer for one request.
type RemoteError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RemoteError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("remote error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// CancelledError is delivered to a caller whose request was still pending when
// the connection terminated. Cause is the termination cause.
type CancelledError struct {
	ID    int64
	Cause error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("mux: request %d cancelled: %v", e.ID, e.Cause)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// ProtocolError is a fatal breach of the request/reply contract, such as a
// reply for an id that was never issued.
type ProtocolError struct {
	ID     int64
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mux: protocol violation for id %d: %s", e.ID, e.Reason)
}

// closedError builds the error returned to calls made after termination.
func closedError(cause error) error {
	if cause == nil || errors.Is(cause, ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("%w: %w", ErrClosed, cause)
}
