package client

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mini-wsrpc/codec"
	"mini-wsrpc/config"
	"mini-wsrpc/metrics"
	"mini-wsrpc/middleware"
	"mini-wsrpc/transport"
)

type Option func(opt *options)

type options struct {
	Logger            *zap.Logger
	Codec             string
	Metrics           *metrics.Metrics
	Tracing           bool
	Tracer            trace.Tracer // nil = global provider
	Heartbeat         time.Duration
	NotificationLimit int
	LenientReplies    bool
	CallTimeout       time.Duration
	Middlewares       []middleware.Middleware
	DialOpts          []transport.Option
}

func defaultOptions() *options {
	return &options{
		Logger:    zap.NewNop(),
		Codec:     codec.DefaultCodec,
		Heartbeat: 30 * time.Second,
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(opt *options) {
		if l != nil {
			opt.Logger = l
		}
	}
}

// WithCodec selects a registered codec by name.
func WithCodec(name string) Option {
	return func(opt *options) {
		opt.Codec = name
	}
}

// WithMetrics instruments the connection and every call.
func WithMetrics(m *metrics.Metrics) Option {
	return func(opt *options) {
		opt.Metrics = m
	}
}

// WithTracing opens a span per call on tracer (nil = global provider).
func WithTracing(tracer trace.Tracer) Option {
	return func(opt *options) {
		opt.Tracing = true
		opt.Tracer = tracer
	}
}

// WithHeartbeat sets the ping interval; 0 disables pings.
func WithHeartbeat(d time.Duration) Option {
	return func(opt *options) {
		opt.Heartbeat = d
	}
}

func WithNotificationLimit(n int) Option {
	return func(opt *options) {
		opt.NotificationLimit = n
	}
}

// WithLenientReplies logs replies for unknown ids instead of failing the connection.
func WithLenientReplies() Option {
	return func(opt *options) {
		opt.LenientReplies = true
	}
}

// WithCallTimeout bounds every Call made through the middleware chain.
func WithCallTimeout(d time.Duration) Option {
	return func(opt *options) {
		opt.CallTimeout = d
	}
}

// WithMiddleware appends call middlewares; the first one added runs outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(opt *options) {
		opt.Middlewares = append(opt.Middlewares, mws...)
	}
}

// WithDialOptions passes options to the transport.
func WithDialOptions(opts ...transport.Option) Option {
	return func(opt *options) {
		opt.DialOpts = append(opt.DialOpts, opts...)
	}
}

// FromConfig translates the client section of a config file into options.
func FromConfig(cfg config.ClientConfig) []Option {
	opts := []Option{
		WithCodec(cfg.Codec),
		WithHeartbeat(cfg.Heartbeat.Std()),
		WithNotificationLimit(cfg.NotificationLimit),
		WithCallTimeout(cfg.CallTimeout.Std()),
	}
	var dial []transport.Option
	if cfg.HandshakeTimeout > 0 {
		dial = append(dial, transport.WithHandshakeTimeout(cfg.HandshakeTimeout.Std()))
	}
	if cfg.WriteTimeout > 0 {
		dial = append(dial, transport.WithWriteTimeout(cfg.WriteTimeout.Std()))
	}
	if len(dial) > 0 {
		opts = append(opts, WithDialOptions(dial...))
	}
	if cfg.LenientReplies {
		opts = append(opts, WithLenientReplies())
	}
	return opts
}
