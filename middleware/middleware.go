// Package middleware wraps calls with cross-cutting behaviour: logging,
// deadlines, tracing and metrics. The same Invoker shape is used by the client
// (around a multiplexed call) and by the server (around a method handler).
package middleware

import (
	"context"
	"encoding/json"
	"errors"

	"mini-wsrpc/message"
	"mini-wsrpc/metrics"
	"mini-wsrpc/mux"
)

// Invoker performs one call and returns its raw result.
type Invoker func(ctx context.Context, req *message.Request) (json.RawMessage, error)

type Middleware func(next Invoker) Invoker

// Chain 将多个中间件组合成一个中间件，第一个在最外层
func Chain(middlewares ...Middleware) Middleware {
	return func(next Invoker) Invoker {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// outcome classifies a call result for logs and metrics.
func outcome(err error) string {
	var (
		remote *mux.RemoteError
		coded  interface{ ErrorCode() int } // errors a server handler sends back with a code
	)
	switch {
	case err == nil:
		return metrics.OutcomeResult
	case errors.As(err, &remote), errors.As(err, &coded):
		return metrics.OutcomeRemote
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeTimeout
	case errors.Is(err, mux.ErrCancelled), errors.Is(err, context.Canceled):
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeSendError
	}
}
