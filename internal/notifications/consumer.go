package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
	"github.com/angelmondragon/kolo-backend/pkg/outbox"
	"github.com/angelmondragon/kolo-backend/pkg/outbox/idempotency"
)

const consumerName = "group-notifications"

type repository interface {
	CreateBatch(ctx context.Context, notifications []models.Notification) error
	ExistsForEvent(ctx context.Context, eventID uuid.UUID) (bool, error)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error)
}

type claimer interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (*idempotency.Claim, error)
}

// Consumer turns domain events into in-app notifications.
type Consumer struct {
	repo         repository
	subscription receiver
	decoders     payloadDecoder
	claims       claimer
	logg         *logger.Logger
}

func NewConsumer(repo repository, subscription receiver, decoders payloadDecoder, claims claimer, logg *logger.Logger) (*Consumer, error) {
	switch {
	case repo == nil:
		return nil, errors.New("notifications repository required")
	case subscription == nil:
		return nil, errors.New("domain subscription required")
	case decoders == nil:
		return nil, errors.New("payload decoders required")
	case claims == nil:
		return nil, errors.New("idempotency manager required")
	case logg == nil:
		return nil, errors.New("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		decoders:     decoders,
		claims:       claims,
		logg:         logg,
	}, nil
}

// Run receives until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data) == redeliver {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type disposition int

const (
	done disposition = iota
	redeliver
)

// decoded is a message that passed envelope and payload validation.
type decoded struct {
	eventID uuid.UUID
	payload any
}

// process acks poison messages since redelivery cannot fix them, and nacks
// only when a dependency failed.
func (c *Consumer) process(ctx context.Context, messageID string, attributes map[string]string, data []byte) disposition {
	eventType := enums.OutboxEventType(attributes["event_type"])
	ctx = c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": string(eventType),
	})

	msg, err := c.decode(eventType, data)
	if err != nil {
		c.logg.Warn(ctx, "dropping undecodable message: "+err.Error())
		return done
	}
	ctx = c.logg.WithEventID(ctx, msg.eventID.String())

	claim, err := c.claims.Claim(ctx, consumerName, msg.eventID)
	if errors.Is(err, idempotency.ErrAlreadyClaimed) {
		c.logg.Info(ctx, "event already processed")
		return done
	}
	if err != nil {
		c.logg.Error(ctx, "idempotency claim failed", err)
		return redeliver
	}

	if err := c.handle(ctx, msg); err != nil {
		c.logg.Error(ctx, "notification handling failed", err)
		if rerr := claim.Release(ctx); rerr != nil {
			c.logg.Warn(ctx, "claim release failed: "+rerr.Error())
		}
		return redeliver
	}
	return done
}

func (c *Consumer) decode(eventType enums.OutboxEventType, data []byte) (decoded, error) {
	envelope, err := outbox.DecodeEnvelope(data)
	if err != nil {
		return decoded{}, err
	}
	eventID, err := envelope.ID()
	if err != nil {
		return decoded{}, err
	}
	payload, err := c.decoders.Decode(eventType, envelope.EffectiveVersion(), envelope.Data)
	if err != nil {
		return decoded{}, fmt.Errorf("event %s: %w", eventID, err)
	}
	return decoded{eventID: eventID, payload: payload}, nil
}

func (c *Consumer) handle(ctx context.Context, msg decoded) error {
	rows := Build(msg.eventID, msg.payload)
	if len(rows) == 0 {
		return nil
	}
	// claims expire, the event_id column does not
	exists, err := c.repo.ExistsForEvent(ctx, msg.eventID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := c.repo.CreateBatch(ctx, rows); err != nil {
		return err
	}
	c.logg.Info(c.logg.WithField(ctx, "recipients", len(rows)), "notifications created")
	return nil
}
