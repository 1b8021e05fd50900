package mux

import (
	"time"

	"go.uber.org/zap"

	"mini-wsrpc/codec"
	"mini-wsrpc/metrics"
)

const (
	defaultHeartbeat          = 30 * time.Second
	defaultRegistrationBuffer = 64
)

type Option func(opt *options)

type options struct {
	Logger             *zap.Logger
	Codec              codec.Codec
	Metrics            *metrics.Metrics
	Heartbeat          time.Duration // websocket ping interval, 0 disables
	NotificationLimit  int           // 0 = unbounded
	RegistrationBuffer int
	LenientReplies     bool
}

func defaultOptions() *options {
	c, _ := codec.GetCodec(codec.DefaultCodec)
	return &options{
		Logger:             zap.NewNop(),
		Codec:              c,
		Heartbeat:          defaultHeartbeat,
		RegistrationBuffer: defaultRegistrationBuffer,
	}
}

// WithLogger sets the logger. Every record carries the connection's conn_id.
func WithLogger(l *zap.Logger) Option {
	return func(opt *options) {
		if l != nil {
			opt.Logger = l
		}
	}
}

// WithCodec sets the message codec (default jsonrpc2.0).
func WithCodec(c codec.Codec) Option {
	return func(opt *options) {
		if c != nil {
			opt.Codec = c
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(opt *options) {
		opt.Metrics = m
	}
}

// WithHeartbeat sets how often a ping frame is sent. Zero disables it.
func WithHeartbeat(d time.Duration) Option {
	return func(opt *options) {
		opt.Heartbeat = d
	}
}

// WithNotificationLimit bounds the notification queue. When the consumer falls
// n notifications behind, further notifications are dropped and logged.
func WithNotificationLimit(n int) Option {
	return func(opt *options) {
		opt.NotificationLimit = n
	}
}

// WithRegistrationBuffer sizes the queue between callers and the dispatch loop.
func WithRegistrationBuffer(n int) Option {
	return func(opt *options) {
		if n > 0 {
			opt.RegistrationBuffer = n
		}
	}
}

// WithLenientReplies makes a reply for an unknown id a logged warning instead
// of a fatal protocol error.
func WithLenientReplies() Option {
	return func(opt *options) {
		opt.LenientReplies = true
	}
}
