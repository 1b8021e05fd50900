// Package transport provides the established, bidirectional frame channels the
// multiplexer runs on.
//
// A Transport does not know about requests or replies. It only moves frames:
//
//	caller goroutines ──Send(frame)──┐
//	                                  ├──→ one socket ──→ peer
//	reader goroutine  ←──Recv()──────┘
//
// Send may be called from many goroutines; Recv is called from exactly one.
package transport

import (
	"context"
	"time"

	"mini-wsrpc/protocol"
)

// Transport is an already-established frame channel.
type Transport interface {
	// Send writes one frame. Implementations serialize concurrent calls so
	// frames never interleave on the wire.
	Send(ctx context.Context, f protocol.Frame) error
	// Recv blocks for the next inbound frame. A clean close by the peer is io.EOF.
	Recv() (protocol.Frame, error)
	// Close tears the connection down and unblocks a pending Recv.
	Close() error
}

const (
	defaultWriteTimeout     = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultReadLimit        = int64(protocol.MaxBodySize)
)

// writeDeadline picks the earlier of the ctx deadline and now+timeout.
// A zero timeout and no ctx deadline mean no deadline.
func writeDeadline(ctx context.Context, timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if cd, ok := ctx.Deadline(); ok && (d.IsZero() || cd.Before(d)) {
		d = cd
	}
	return d
}
