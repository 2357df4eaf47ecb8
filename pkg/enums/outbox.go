package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateContributionGroup OutboxAggregateType = "contribution_group"
	AggregateWithdrawalRequest OutboxAggregateType = "withdrawal_request"
	AggregateRefundRequest     OutboxAggregateType = "refund_request"
	AggregateTransaction       OutboxAggregateType = "transaction"
	AggregateRecurring         OutboxAggregateType = "recurring_contribution"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateContributionGroup,
	AggregateWithdrawalRequest,
	AggregateRefundRequest,
	AggregateTransaction,
	AggregateRecurring,
}

func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	a := OutboxAggregateType(value)
	if !a.IsValid() {
		return "", fmt.Errorf("invalid aggregate type %q", value)
	}
	return a, nil
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventWithdrawalRequestCreated OutboxEventType = "withdrawal_request_created"
	EventWithdrawalDecided        OutboxEventType = "withdrawal_decided"
	EventWithdrawalExecuted       OutboxEventType = "withdrawal_executed"
	EventRefundRequestCreated     OutboxEventType = "refund_request_created"
	EventRefundDecided            OutboxEventType = "refund_decided"
	EventRefundExecuted           OutboxEventType = "refund_executed"
	EventContributionReceived     OutboxEventType = "contribution_received"
	EventRecurringFailed          OutboxEventType = "recurring_contribution_failed"
)

// eventAggregates pins every event type to the aggregate that owns it. An
// event type missing here is not a valid event type.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventWithdrawalRequestCreated: AggregateWithdrawalRequest,
	EventWithdrawalDecided:        AggregateWithdrawalRequest,
	EventWithdrawalExecuted:       AggregateWithdrawalRequest,
	EventRefundRequestCreated:     AggregateRefundRequest,
	EventRefundDecided:            AggregateRefundRequest,
	EventRefundExecuted:           AggregateRefundRequest,
	EventContributionReceived:     AggregateTransaction,
	EventRecurringFailed:          AggregateRecurring,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type that emits e, or "" for unknown events.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	e := OutboxEventType(value)
	if !e.IsValid() {
		return "", fmt.Errorf("invalid event type %q", value)
	}
	return e, nil
}
