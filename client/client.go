// Package client is the application-facing side of a multiplexed connection:
// it finds an endpoint, dials it, and runs every call through a middleware
// chain before handing it to mux.
//
//	Client.Call → middleware chain → mux.Conn.Request → transport
//	                                        ↑
//	               Notifications() ←── dispatch loop
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"mini-wsrpc/codec"
	"mini-wsrpc/loadbalance"
	"mini-wsrpc/message"
	"mini-wsrpc/middleware"
	"mini-wsrpc/mux"
	"mini-wsrpc/registry"
	"mini-wsrpc/transport"
)

// Built-in subscription methods.
const (
	methodSubscribe   = "public/subscribe"
	methodUnsubscribe = "public/unsubscribe"
)

type Client struct {
	endpoint string
	conn     *mux.Conn
	log      *zap.Logger
	invoke   middleware.Invoker
}

// Dial connects to endpoint. ws:// and wss:// use websocket; tcp://host:port
// uses the framed stream transport.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}

	cdc, err := codec.GetCodec(o.Codec)
	if err != nil {
		return nil, err
	}

	t, err := dialTransport(ctx, endpoint, o.DialOpts)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", endpoint, err)
	}

	muxOpts := []mux.Option{
		mux.WithLogger(o.Logger),
		mux.WithCodec(cdc),
		mux.WithMetrics(o.Metrics),
		mux.WithHeartbeat(o.Heartbeat),
		mux.WithNotificationLimit(o.NotificationLimit),
	}
	if o.LenientReplies {
		muxOpts = append(muxOpts, mux.WithLenientReplies())
	}
	conn := mux.New(t, muxOpts...)

	c := &Client{
		endpoint: endpoint,
		conn:     conn,
		log:      o.Logger.With(zap.String("conn_id", conn.ID()), zap.String("endpoint", endpoint)),
	}
	c.invoke = middleware.Chain(chain(o)...)(c.request)
	c.log.Info("connected")
	return c, nil
}

// DialService discovers the instances of service, lets bal pick one and dials it.
func DialService(ctx context.Context, reg registry.Registry, bal loadbalance.Balancer, service string, opts ...Option) (*Client, error) {
	instances, err := reg.Discover(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("client: discover %s: %w", service, err)
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("client: discover %s: %w", service, registry.ErrNoInstances)
	}
	inst, err := bal.Pick(instances)
	if err != nil {
		return nil, err
	}
	return Dial(ctx, inst.Addr, opts...)
}

func dialTransport(ctx context.Context, endpoint string, opts []transport.Option) (transport.Transport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "ws", "wss":
		return transport.DialWebSocket(ctx, endpoint, opts...)
	case "tcp":
		return transport.DialStream(ctx, "tcp", u.Host, opts...)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

// chain orders the configured middlewares: tracing and metrics see the whole
// call, the timeout applies closest to the connection.
func chain(o *options) []middleware.Middleware {
	var mws []middleware.Middleware
	if o.Tracing {
		mws = append(mws, middleware.Tracing(o.Tracer))
	}
	if o.Metrics != nil {
		mws = append(mws, middleware.Metrics(o.Metrics))
	}
	mws = append(mws, o.Middlewares...)
	if o.CallTimeout > 0 {
		mws = append(mws, middleware.Timeout(o.CallTimeout))
	}
	return mws
}

func (c *Client) request(ctx context.Context, req *message.Request) (json.RawMessage, error) {
	return c.conn.Request(ctx, req.Method, req.Params)
}

// Call runs method through the middleware chain and unmarshals the result into
// reply. A nil reply discards the result.
func (c *Client) Call(ctx context.Context, method string, params, reply any) error {
	raw, err := c.Request(ctx, method, params)
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	return json.Unmarshal(raw, reply)
}

// Request runs method through the middleware chain and returns the raw result.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.invoke(ctx, &message.Request{Method: method, Params: params})
}

// Go issues method without waiting for the reply. It bypasses the middleware
// chain; the caller collects the reply with (*mux.Call).Wait.
func (c *Client) Go(ctx context.Context, method string, params any) (*mux.Call, error) {
	return c.conn.Go(ctx, method, params)
}

// Subscribe asks the server to push notifications for channels and returns
// the channels it accepted.
func (c *Client) Subscribe(ctx context.Context, channels ...string) ([]string, error) {
	var accepted []string
	err := c.Call(ctx, methodSubscribe, map[string][]string{"channels": channels}, &accepted)
	return accepted, err
}

// Unsubscribe stops notifications for channels and returns the ones removed.
func (c *Client) Unsubscribe(ctx context.Context, channels ...string) ([]string, error) {
	var removed []string
	err := c.Call(ctx, methodUnsubscribe, map[string][]string{"channels": channels}, &removed)
	return removed, err
}

// Notifications delivers server pushes in arrival order; see mux.Conn.Notifications.
func (c *Client) Notifications() <-chan *message.Notification { return c.conn.Notifications() }

// CloseNotifications tells the connection nobody reads notifications any more.
func (c *Client) CloseNotifications() { c.conn.CloseNotifications() }

func (c *Client) Done() <-chan struct{} { return c.conn.Done() }

func (c *Client) Err() error { return c.conn.Err() }

func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) ConnID() string { return c.conn.ID() }

// Close terminates the connection. Pending calls fail with a *mux.CancelledError.
func (c *Client) Close() error {
	err := c.conn.Close()
	c.log.Info("disconnected")
	return err
}
