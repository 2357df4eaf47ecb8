package enums

import "fmt"

// OutboxDLQErrorReason records why an outbox row was parked instead of published.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts means the broker kept failing until the retry budget ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable covers rows whose payload or event type cannot be decoded.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// OutboxDLQReasonUnroutable means no topic publisher exists for the resolved event.
	OutboxDLQReasonUnroutable OutboxDLQErrorReason = "unroutable"
)

// IsValid reports whether r matches the outbox_dlq_error_reason_enum type.
func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable, OutboxDLQReasonUnroutable:
		return true
	}
	return false
}

// ParseOutboxDLQErrorReason converts a stored value back into the enum.
func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	r := OutboxDLQErrorReason(value)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid outbox dlq error reason %q", value)
	}
	return r, nil
}
