// Package testutil carries the request plumbing shared by handler tests:
// building JSON requests, serving them through a chi router, and asserting
// the gate error wire shape.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewJSONRequest builds a request with body marshaled as JSON. Extra headers
// come in key, value pairs.
func NewJSONRequest(t *testing.T, method, path string, body any, headers ...string) *http.Request {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err, "marshal request body")

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return req
}

// DoRequest serves req through handler and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// DecodeJSON unmarshals the recorded body into T, failing the test on
// malformed output.
func DecodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "decode response body: %s", rec.Body.String())
	return v
}

// AssertStatus asserts the recorded status code, printing the body on
// mismatch since gate denials explain themselves there.
func AssertStatus(t *testing.T, rec *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, rec.Code, "unexpected status, body: %s", rec.Body.String())
}

// AssertDenied asserts a denial response: the expected status and wire error
// code. It returns the audit_entry_id field so callers can check whether the
// denial was durably recorded.
func AssertDenied(t *testing.T, rec *httptest.ResponseRecorder, status int, wireCode string) string {
	t.Helper()
	AssertStatus(t, rec, status)

	resp := DecodeJSON[struct {
		Error        string `json:"error"`
		AuditEntryID string `json:"audit_entry_id"`
	}](t, rec)
	assert.Equal(t, wireCode, resp.Error, "unexpected wire error code")
	return resp.AuditEntryID
}
