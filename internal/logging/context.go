package logging

import (
	"context"

	"go.uber.org/zap"
)

type requestIDKey struct{}
type requesterKey struct{}

// WithRequestID stores a request correlation ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithRequester stores the acting agent identity in the context.
func WithRequester(ctx context.Context, agent string) context.Context {
	if agent == "" {
		return ctx
	}
	return context.WithValue(ctx, requesterKey{}, agent)
}

// RequesterFromContext returns the acting agent identity, or "".
func RequesterFromContext(ctx context.Context) string {
	agent, _ := ctx.Value(requesterKey{}).(string)
	return agent
}

// ContextFields extracts correlation fields for log lines.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	if agent := RequesterFromContext(ctx); agent != "" {
		fields = append(fields, zap.String("requester", agent))
	}
	return fields
}
