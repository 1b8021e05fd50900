package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mini-wsrpc/metrics"
	"mini-wsrpc/registry"
	"mini-wsrpc/transport"
)

type Option func(opt *options)

type options struct {
	Logger        *zap.Logger
	Workers       int
	Path          string
	Metrics       *metrics.ServerMetrics
	Gatherer      prometheus.Gatherer // served on MetricsPath when set
	MetricsPath   string
	Registry      registry.Registry
	Service       string
	Instance      registry.ServiceInstance
	TTL           int64
	TransportOpts []transport.Option
}

func defaultOptions() *options {
	return &options{
		Logger:      zap.NewNop(),
		Workers:     256,
		Path:        "/ws",
		MetricsPath: "/metrics",
		TTL:         10,
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(opt *options) {
		if l != nil {
			opt.Logger = l
		}
	}
}

// WithWorkers sizes the handler goroutine pool.
func WithWorkers(n int) Option {
	return func(opt *options) {
		if n > 0 {
			opt.Workers = n
		}
	}
}

// WithPath sets the websocket endpoint path (default /ws).
func WithPath(path string) Option {
	return func(opt *options) {
		opt.Path = path
	}
}

// WithMetrics instruments the server and, if g is not nil, exposes g on path.
func WithMetrics(m *metrics.ServerMetrics, g prometheus.Gatherer, path string) Option {
	return func(opt *options) {
		opt.Metrics = m
		opt.Gatherer = g
		if path != "" {
			opt.MetricsPath = path
		}
	}
}

// WithRegistry registers instance under service while the server runs.
func WithRegistry(reg registry.Registry, service string, instance registry.ServiceInstance, ttl int64) Option {
	return func(opt *options) {
		opt.Registry = reg
		opt.Service = service
		opt.Instance = instance
		if ttl > 0 {
			opt.TTL = ttl
		}
	}
}

// WithTransportOptions applies to every accepted connection.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(opt *options) {
		opt.TransportOpts = append(opt.TransportOpts, opts...)
	}
}
