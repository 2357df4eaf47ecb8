package types

// RequestIDHeader carries the per-request correlation id on every response.
const RequestIDHeader = "X-Request-Id"

// SuccessEnvelope wraps every 2xx body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public error shape. Details are only set for codes that allow them.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ErrorEnvelope wraps every non-2xx body except webhook replies.
type ErrorEnvelope struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

// WebhookAck is the flat body payment providers get back from the
// contribution webhook.
type WebhookAck struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
