// Package registry knows the payload schema and destination topic of every
// outbox event type. The relay resolves rows through EventRegistry before
// publishing and subscribers decode envelopes through DecoderRegistry.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/kolo-backend/pkg/config"
	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	"github.com/angelmondragon/kolo-backend/pkg/outbox"
	"github.com/angelmondragon/kolo-backend/pkg/outbox/payloads"
)

// payloadFactories lists every event the relay will publish. An event type
// missing here is dead-lettered as unsupported.
var payloadFactories = map[enums.OutboxEventType]func() interface{}{
	enums.EventWithdrawalRequestCreated: func() interface{} { return &payloads.WithdrawalRequestCreatedEvent{} },
	enums.EventWithdrawalDecided:        func() interface{} { return &payloads.WithdrawalDecidedEvent{} },
	enums.EventWithdrawalExecuted:       func() interface{} { return &payloads.WithdrawalExecutedEvent{} },
	enums.EventRefundRequestCreated:     func() interface{} { return &payloads.RefundRequestCreatedEvent{} },
	enums.EventRefundDecided:            func() interface{} { return &payloads.RefundDecidedEvent{} },
	enums.EventRefundExecuted:           func() interface{} { return &payloads.RefundExecutedEvent{} },
	enums.EventContributionReceived:     func() interface{} { return &payloads.ContributionReceivedEvent{} },
	enums.EventRecurringFailed:          func() interface{} { return &payloads.RecurringContributionFailedEvent{} },
}

// EventDescriptor is what the relay needs to route one event type.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is an outbox row checked against its descriptor, with the
// envelope and typed payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that can never publish as stored. The relay
// dead-letters it instead of counting another attempt.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// IsNonRetryable reports whether err, or anything it wraps, is a NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}

// NewEventRegistry routes every group event to the domain topic. The owning
// aggregate of each event comes from enums so the relay and Emit agree on it.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, errors.New("domain topic is required")
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(payloadFactories))}
	for eventType, factory := range payloadFactories {
		aggregate := eventType.Aggregate()
		if aggregate == "" {
			return nil, fmt.Errorf("event %s has no owning aggregate", eventType)
		}
		reg.entries[eventType] = EventDescriptor{
			EventType:      eventType,
			AggregateType:  aggregate,
			Topic:          cfg.DomainTopic,
			PayloadFactory: factory,
		}
	}
	return reg, nil
}

func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// EventTypes lists the registered event types in name order.
func (r *EventRegistry) EventTypes() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(r.entries))
	for eventType := range r.entries {
		out = append(out, eventType)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve checks a row against its descriptor and decodes the payload. Every
// failure is non-retryable since the row will not change between attempts.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, err := r.check(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

func (r *EventRegistry) check(event models.OutboxEvent) (EventDescriptor, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return desc, fmt.Errorf("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return desc, fmt.Errorf("aggregate mismatch: %s belongs to %s, row says %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return desc, errors.New("missing aggregate_id")
	}
	return desc, nil
}

// NewDomainDecoders registers a v1 JSON decoder for every registered event so
// subscribers can turn an envelope back into its typed payload.
func NewDomainDecoders(reg *EventRegistry) *DecoderRegistry {
	decoders := NewDecoderRegistry()
	for eventType, desc := range reg.entries {
		decoders.Register(eventType, 1, JSONDecoder(desc.PayloadFactory))
	}
	return decoders
}
