package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	"github.com/angelmondragon/kolo-backend/pkg/metrics"
	"github.com/angelmondragon/kolo-backend/pkg/outbox"
	"github.com/angelmondragon/kolo-backend/pkg/outbox/registry"
)

var errUnroutable = errors.New("no publisher for topic")

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDeadLetter
)

// outcome is what one publish attempt decided for a row.
type outcome struct {
	verdict  verdict
	reason   enums.OutboxDLQErrorReason
	topic    string
	envelope outbox.PayloadEnvelope
	err      error
}

// dispatch resolves and publishes a single row without touching the database.
func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) outcome {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcome{verdict: verdictDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}

	out := outcome{topic: resolved.Descriptor.Topic, envelope: resolved.Envelope}
	err = s.publish(ctx, event, resolved)
	switch {
	case err == nil:
		out.verdict = verdictPublished
	case errors.Is(err, errUnroutable):
		out.verdict, out.reason, out.err = verdictDeadLetter, enums.OutboxDLQReasonUnroutable, err
	case registry.IsNonRetryable(err):
		out.verdict, out.reason, out.err = verdictDeadLetter, enums.OutboxDLQReasonNonRetryable, err
	case event.FinalAttempt(s.settings.maxAttempts):
		out.verdict, out.reason = verdictDeadLetter, enums.OutboxDLQReasonMaxAttempts
		out.err = fmt.Errorf("max publish attempts reached: %w", err)
	default:
		out.verdict, out.err = verdictRetry, err
	}
	return out
}

// settle records the outcome on the row inside the batch transaction.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, out outcome) error {
	ctx = s.logg.WithFields(ctx, s.eventFields(event, out))

	switch out.verdict {
	case verdictPublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.Observe(string(event.EventType), metrics.OutboxOutcomePublished)
		s.logg.Info(ctx, "outbox event published")

	case verdictRetry:
		s.logg.Warn(s.logg.WithField(ctx, "error", out.err.Error()), "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, event.ID, out.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		s.metrics.Observe(string(event.EventType), metrics.OutboxOutcomeRetry)

	case verdictDeadLetter:
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"error":        out.err.Error(),
			"error_reason": out.reason,
		}), "outbox event will not be retried")
		msg := out.err.Error()
		entry := models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   out.reason,
			ErrorMessage:  &msg,
			AttemptCount:  event.AttemptCount,
			FailedAt:      s.now().UTC(),
		}
		if err := s.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, event.ID, out.err, s.settings.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		s.metrics.Observe(string(event.EventType), metrics.OutboxOutcomeDeadLettered)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("%w %s", errUnroutable, topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, resolved.Envelope),
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// messageAttributes lets subscribers filter and dedupe without decoding the body.
func messageAttributes(event models.OutboxEvent, envelope outbox.PayloadEnvelope) map[string]string {
	return map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(event.EventType),
		"event_version":  strconv.Itoa(envelope.EffectiveVersion()),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (s *Service) eventFields(event models.OutboxEvent, out outcome) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if out.envelope.EventID != "" {
		fields["event_id"] = out.envelope.EventID
		fields["occurred_at"] = out.envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if out.topic != "" {
		fields["topic"] = out.topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
