// Package types holds the JSON envelopes shared by every HTTP response.
package types

// SuccessEnvelope wraps a successful payload under "data".
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public shape of a failure. RequestID mirrors the
// X-Request-Id response header when one was assigned.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
