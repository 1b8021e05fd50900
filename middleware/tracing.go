package middleware

import (
	"context"
	"encoding/json"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mini-wsrpc/message"
	"mini-wsrpc/mux"
)

const tracerName = "mini-wsrpc/middleware"

// Tracing opens a client span per call. A nil tracer uses the global provider.
func Tracing(tracer trace.Tracer) Middleware {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return func(next Invoker) Invoker {
		return func(ctx context.Context, req *message.Request) (json.RawMessage, error) {
			ctx, span := tracer.Start(ctx, req.Method,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String("rpc.system", "jsonrpc"),
					attribute.String("rpc.method", req.Method),
				),
			)
			defer span.End()

			result, err := next(ctx, req)
			if err != nil {
				var remote *mux.RemoteError
				if errors.As(err, &remote) {
					span.SetAttributes(
						attribute.Int("rpc.jsonrpc.error_code", remote.Code),
						attribute.String("rpc.jsonrpc.error_message", remote.Message),
					)
				}
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			span.SetStatus(codes.Ok, "")
			return result, nil
		}
	}
}
