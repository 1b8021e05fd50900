// Package mux multiplexes concurrent JSON-RPC calls and server push
// notifications over one established transport.
//
// Every call gets a unique id. The caller registers a waiter for that id with
// the dispatch loop and then writes the request frame. One background goroutine
// (the dispatch loop) reads every inbound frame, and routes replies to the
// matching waiter and everything else to the notification queue:
//
//	goroutine-1 ──Go(id=0)──┐
//	goroutine-2 ──Go(id=1)──┼──→ transport ──→ peer
//	goroutine-3 ──Go(id=2)──┘
//
//	dispatch: ←── reply(id=1)  → waiter[1] → goroutine-2 wakes up
//	          ←── subscription → Notifications()
//
// When the transport fails, the peer breaks the protocol, or Close is called,
// the loop terminates: every pending call fails with a *CancelledError and
// every later call fails with ErrClosed.
package mux

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mini-wsrpc/codec"
	"mini-wsrpc/message"
	"mini-wsrpc/metrics"
	"mini-wsrpc/protocol"
	"mini-wsrpc/transport"
)

// Conn is a multiplexed client connection. All methods are safe for
// concurrent use.
type Conn struct {
	id      string
	t       transport.Transport
	codec   codec.Codec
	log     *zap.Logger
	metrics *metrics.Metrics
	opts    *options

	nextID  atomic.Int64
	sending sync.Mutex // one outbound frame at a time

	// owned by the dispatch goroutine
	pending    *table
	controlLog rate.Sometimes

	register   chan *waiter
	unregister chan int64
	inbound    chan inboundEvent
	fwd        *forwarder

	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	err       error // written once before done is closed
}

type inboundEvent struct {
	frame protocol.Frame
	err   error
}

// New takes ownership of t and starts the dispatch loop.
func New(t transport.Transport, opts ...Option) *Conn {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}

	id := uuid.NewString()
	c := &Conn{
		id:         id,
		t:          t,
		codec:      o.Codec,
		log:        o.Logger.With(zap.String("conn_id", id)),
		metrics:    o.Metrics,
		opts:       o,
		pending:    newTable(),
		controlLog: rate.Sometimes{First: 3, Interval: 10 * time.Second},
		register:   make(chan *waiter, o.RegistrationBuffer),
		unregister: make(chan int64),
		inbound:    make(chan inboundEvent),
		fwd:        newForwarder(o.NotificationLimit),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
	}

	go c.readLoop()
	go c.dispatch()
	if o.Heartbeat > 0 {
		go c.heartbeatLoop(o.Heartbeat)
	}
	c.log.Debug("connection started", zap.String("codec", c.codec.Name()))
	return c
}

// ID identifies the connection in logs.
func (c *Conn) ID() string { return c.id }

// Go issues a request and returns once the request frame has been written.
// The reply is collected with (*Call).Wait.
func (c *Conn) Go(ctx context.Context, method string, params any) (*Call, error) {
	select {
	case <-c.done:
		return nil, closedError(c.err)
	default:
	}

	id := c.nextID.Add(1) - 1
	data, err := c.codec.Encode(&message.Request{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, &TransportError{Op: "encode", Err: err}
	}

	// register before writing, so the reply can never reach the loop first
	w := newWaiter(id, method)
	select {
	case c.register <- w:
	case <-c.done:
		return nil, closedError(c.err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.log.Debug("send request", zap.Int64("id", id), zap.String("method", method), zap.ByteString("payload", data))
	if err := c.send(ctx, protocol.Text(data)); err != nil {
		select {
		case c.unregister <- id:
		case <-c.done:
		}
		c.metrics.Outcome(metrics.OutcomeSendError)
		return nil, &TransportError{Op: "send", Err: err}
	}

	return &Call{ID: id, Method: method, w: w, conn: c}, nil
}

// Request issues a request and waits for its raw result.
func (c *Conn) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	call, err := c.Go(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return call.Wait(ctx)
}

// Call issues a request and unmarshals the result into result.
// A nil result discards it.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	raw, err := c.Request(ctx, method, params)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(raw, result)
}

// Notifications delivers inbound push messages in arrival order. The channel is
// closed after the connection terminates and buffered notifications were read.
// The consumer must keep reading or call CloseNotifications.
func (c *Conn) Notifications() <-chan *message.Notification {
	return c.fwd.out
}

// CloseNotifications tells the connection the consumer is gone. Buffered
// notifications are discarded; the next notification that arrives terminates
// the connection with ErrSinkClosed.
func (c *Conn) CloseNotifications() {
	c.fwd.closeSink()
}

// Done is closed when the connection has terminated.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the termination cause, or nil while the connection runs.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close terminates the connection and waits for the dispatch loop to finish.
// Pending calls fail with a *CancelledError whose cause is ErrClosed.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closing) })
	<-c.done
	return nil
}

// send writes one frame. Frames from different goroutines never interleave.
func (c *Conn) send(ctx context.Context, f protocol.Frame) error {
	c.sending.Lock()
	defer c.sending.Unlock()
	return c.t.Send(ctx, f)
}

// readLoop pumps transport frames into the dispatch loop. It exits after the
// first receive error or once the loop has terminated.
func (c *Conn) readLoop() {
	for {
		f, err := c.t.Recv()
		select {
		case c.inbound <- inboundEvent{frame: f, err: err}:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// heartbeatLoop sends a ping frame every interval so idle connections are not
// dropped by the peer or by proxies in between.
func (c *Conn) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := c.send(ctx, protocol.Ping(nil))
			cancel()
			if err != nil {
				c.log.Debug("heartbeat failed", zap.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}

// Call is an issued request whose reply may not have arrived yet.
type Call struct {
	ID     int64
	Method string

	w    *waiter
	conn *Conn
}

// Done is closed when the reply arrived or the call was cancelled.
func (call *Call) Done() <-chan struct{} { return call.w.done }

// Wait blocks until the reply arrives, the connection terminates, or ctx ends.
// It returns the raw result, a *RemoteError, a *CancelledError or ctx.Err().
// Giving up through ctx leaves the request outstanding; a later reply is still
// matched and discarded.
func (call *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-call.w.done:
		return call.w.result, call.w.err
	case <-call.conn.done:
		select {
		case <-call.w.done:
			return call.w.result, call.w.err
		default:
		}
		// registered after the loop drained, nobody will resolve it
		return nil, &CancelledError{ID: call.ID, Cause: call.conn.err}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
