// Package requestcontext carries request-scoped values (request id, client
// metadata, pinned request time) so services, stores and the audit log can
// read them without importing net/http.
package requestcontext

import (
	"context"
	"time"
)

type key int

const (
	keyRequestID key = iota
	keyClientIP
	keyUserAgent
	keyRequestTime
)

func stringValue(ctx context.Context, k key) string {
	v, _ := ctx.Value(k).(string)
	return v
}

// RequestID returns the id assigned by the request middleware, or "".
func RequestID(ctx context.Context) string {
	return stringValue(ctx, keyRequestID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

func ClientIP(ctx context.Context) string {
	return stringValue(ctx, keyClientIP)
}

func UserAgent(ctx context.Context) string {
	return stringValue(ctx, keyUserAgent)
}

// WithClientMetadata stores the caller's IP and User-Agent for audit rows.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, keyClientIP, clientIP)
	return context.WithValue(ctx, keyUserAgent, userAgent)
}

// Now returns the time pinned for this request. Contexts without one (sweeper
// runs, CLI commands) get the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(keyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request time. Sweeper batches use it so every row in one
// pass shares a timestamp.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, keyRequestTime, t)
}
