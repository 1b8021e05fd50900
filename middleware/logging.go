package middleware

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"mini-wsrpc/message"
)

// Logging records every call with its method, duration and outcome.
// Successful calls are logged at debug level, failed ones at warn.
func Logging(log *zap.Logger) Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next Invoker) Invoker {
		return func(ctx context.Context, req *message.Request) (json.RawMessage, error) {
			start := time.Now()
			result, err := next(ctx, req)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.Duration("duration", time.Since(start)),
				zap.String("outcome", outcome(err)),
			}
			if err != nil {
				log.Warn("call failed", append(fields, zap.Error(err))...)
			} else {
				log.Debug("call", fields...)
			}
			return result, err
		}
	}
}
