package testutil

import (
	"net/http"
	"time"

	"simkyc/pkg/requestcontext"
)

// WithRequestID sets the request id the middleware would have assigned.
func WithRequestID(req *http.Request, id string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), id))
}

// AtTime pins the request clock.
func AtTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
