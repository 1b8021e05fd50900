package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mini-wsrpc/message"
)

// ErrTimeout is returned when a call outlives the Timeout middleware's deadline.
var ErrTimeout = errors.New("request timed out")

type callResult struct {
	result json.RawMessage
	err    error
}

// Timeout bounds every call. next runs on its own goroutine so a handler that
// ignores ctx still cannot hold the caller past the deadline.
func Timeout(timeout time.Duration) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context, req *message.Request) (json.RawMessage, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan callResult, 1)
			go func() {
				result, err := next(ctx, req)
				done <- callResult{result: result, err: err}
			}()

			select {
			case r := <-done:
				return r.result, r.err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, ctx.Err())
				}
				return nil, ctx.Err()
			}
		}
	}
}
