package middleware

import (
	"context"
	"encoding/json"
	"time"

	"mini-wsrpc/message"
	"mini-wsrpc/metrics"
)

// Metrics observes call latency by method and outcome.
func Metrics(m *metrics.Metrics) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context, req *message.Request) (json.RawMessage, error) {
			start := time.Now()
			result, err := next(ctx, req)
			m.ObserveCall(req.Method, outcome(err), time.Since(start))
			return result, err
		}
	}
}
