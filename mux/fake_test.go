package mux

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"mini-wsrpc/protocol"
)

// fakeTransport is an in-memory Transport. Frames written by the Conn appear on
// sent; frames pushed with deliver are returned by Recv.
type fakeTransport struct {
	sent    chan protocol.Frame
	recv    chan protocol.Frame
	recvErr chan error

	mu      sync.Mutex
	sendErr error

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent:    make(chan protocol.Frame, 1024),
		recv:    make(chan protocol.Frame),
		recvErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) Send(ctx context.Context, fr protocol.Frame) error {
	f.mu.Lock()
	err := f.sendErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	select {
	case f.sent <- fr:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransport) Recv() (protocol.Frame, error) {
	select {
	case fr := <-f.recv:
		return fr, nil
	case err := <-f.recvErr:
		return protocol.Frame{}, err
	case <-f.closed:
		return protocol.Frame{}, net.ErrClosed
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) failSends(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// deliver hands one frame to the Conn's reader.
func (f *fakeTransport) deliver(t testing.TB, fr protocol.Frame) {
	t.Helper()
	select {
	case f.recv <- fr:
	case <-time.After(2 * time.Second):
		t.Fatalf("frame %s not consumed", fr.Type)
	}
}

func (f *fakeTransport) deliverText(t testing.TB, text string) {
	t.Helper()
	f.deliver(t, protocol.Text([]byte(text)))
}

func (f *fakeTransport) reply(t testing.TB, id int64, result string) {
	t.Helper()
	f.deliverText(t, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, id, result))
}

type sentRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// nextRequest returns the next text frame written by the Conn, skipping pings.
func (f *fakeTransport) nextRequest(t testing.TB) sentRequest {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case fr := <-f.sent:
			if fr.Type != protocol.FrameText {
				continue
			}
			var req sentRequest
			if err := json.Unmarshal(fr.Data, &req); err != nil {
				t.Fatalf("bad request frame %q: %v", fr.Data, err)
			}
			return req
		case <-timeout:
			t.Fatal("no request sent")
			return sentRequest{}
		}
	}
}

func newTestConn(t testing.TB, opts ...Option) (*Conn, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	c := New(ft, append([]Option{WithHeartbeat(0)}, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c, ft
}

func waitDone(t testing.TB, c *Conn) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not terminate")
	}
}

var errBoom = errors.New("boom")
