package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"mini-wsrpc/protocol"
)

var _ Transport = (*Stream)(nil)

// Stream carries frames over a plain byte-stream connection using the
// length-prefixed encoding from package protocol.
type Stream struct {
	conn         net.Conn
	writeTimeout time.Duration
	sending      sync.Mutex // a frame's header and body must not interleave with another frame
	closeOnce    sync.Once
	closeErr     error
}

// NewStream wraps an established connection.
func NewStream(conn net.Conn, opts ...Option) *Stream {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	return &Stream{conn: conn, writeTimeout: o.WriteTimeout}
}

// DialStream connects to a stream peer over network/address.
func DialStream(ctx context.Context, network, address string, opts ...Option) (*Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return NewStream(conn, opts...), nil
}

func (s *Stream) Send(ctx context.Context, f protocol.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.sending.Lock()
	defer s.sending.Unlock()

	if err := s.conn.SetWriteDeadline(writeDeadline(ctx, s.writeTimeout)); err != nil {
		return err
	}
	return protocol.Encode(s.conn, &f)
}

// Recv returns the next frame. Pings are answered with a pong before being
// returned; a close frame ends the stream with io.EOF.
func (s *Stream) Recv() (protocol.Frame, error) {
	f, err := protocol.Decode(s.conn)
	if err != nil {
		return protocol.Frame{}, err
	}

	switch f.Type {
	case protocol.FrameClose:
		return protocol.Frame{}, io.EOF
	case protocol.FramePing:
		if err := s.Send(context.Background(), protocol.Frame{Type: protocol.FramePong, Data: f.Data}); err != nil {
			return protocol.Frame{}, err
		}
	}
	return *f, nil
}

// Close sends a close frame (best effort) and closes the connection.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		_ = s.Send(ctx, protocol.Frame{Type: protocol.FrameClose})
		cancel()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
