package util

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// RequestIDFrom reuses an upstream X-Request-ID only when it is a well-formed uuid.
func RequestIDFrom(header string) string {
	if header != "" {
		if u, err := uuid.Parse(header); err == nil {
			return u.String()
		}
	}
	return NewRequestID()
}
func NewRequestID() string {
	return uuid.New().String()
}
