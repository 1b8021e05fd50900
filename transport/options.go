package transport

import (
	"net/http"
	"time"
)

type Option func(opt *options)

type options struct {
	WriteTimeout     time.Duration // per-frame write deadline, 0 = none
	HandshakeTimeout time.Duration // websocket opening handshake
	ReadLimit        int64         // max inbound message size
	Header           http.Header   // extra handshake headers
}

func defaultOptions() *options {
	return &options{
		WriteTimeout:     defaultWriteTimeout,
		HandshakeTimeout: defaultHandshakeTimeout,
		ReadLimit:        defaultReadLimit,
	}
}

// WithWriteTimeout bounds every frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(opt *options) {
		opt.WriteTimeout = d
	}
}

// WithHandshakeTimeout bounds the websocket opening handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(opt *options) {
		opt.HandshakeTimeout = d
	}
}

// WithReadLimit caps the size of a single inbound message.
func WithReadLimit(n int64) Option {
	return func(opt *options) {
		opt.ReadLimit = n
	}
}

// WithHeader adds headers to the websocket handshake request.
func WithHeader(h http.Header) Option {
	return func(opt *options) {
		opt.Header = h
	}
}
