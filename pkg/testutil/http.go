// Package testutil provides request and response helpers for handler and
// end-to-end tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewJSONRequest marshals body and builds a JSON request.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err, "failed to marshal request body")
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewRawRequest builds a request whose body is sent byte for byte, as signed
// webhook deliveries must be.
func NewRawRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DoRequest runs req against handler.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// DecodeBody decodes the response into a generic map.
func DecodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), "failed to unmarshal response: %s", rr.Body.String())
	return body
}

// UnmarshalResponse decodes the response into T.
func UnmarshalResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) *T {
	t.Helper()
	var result T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result), "failed to unmarshal response")
	return &result
}

// AssertSuccess checks the status code and the success envelope.
func AssertSuccess(t *testing.T, rr *httptest.ResponseRecorder, status int) map[string]any {
	t.Helper()
	require.Equal(t, status, rr.Code, "unexpected status: %s", rr.Body.String())
	body := DecodeBody(t, rr)
	assert.Equal(t, true, body["success"])
	return body
}

// AssertFail checks the status code and the failure envelope message.
func AssertFail(t *testing.T, rr *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	require.Equal(t, status, rr.Code, "unexpected status: %s", rr.Body.String())
	body := DecodeBody(t, rr)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, message, body["message"])
}
