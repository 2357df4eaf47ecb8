package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/kolo-backend/pkg/db/types"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
)

var (
	ErrTransactionRequired = errors.New("outbox emit requires a transaction")
	ErrInvalidEvent        = errors.New("invalid outbox event")
)

// DomainEvent is what services hand to Emit inside their transaction.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// normalize fills a blank aggregate type from the event type and rejects
// events whose aggregate does not own them.
func (e *DomainEvent) normalize() error {
	if !e.EventType.IsValid() {
		return fmt.Errorf("%w: event type %q", ErrInvalidEvent, e.EventType)
	}
	if e.AggregateType == "" {
		e.AggregateType = e.EventType.Aggregate()
	}
	switch {
	case e.AggregateType != e.EventType.Aggregate():
		return fmt.Errorf("%w: %s is not raised by %q", ErrInvalidEvent, e.EventType, e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("%w: %s has no aggregate id", ErrInvalidEvent, e.EventType)
	case e.Data == nil:
		return fmt.Errorf("%w: %s has no data", ErrInvalidEvent, e.EventType)
	}
	return nil
}

// Emitter is the narrow surface domain services depend on.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo    *Repository
	logg    *logger.Logger
	now     func() time.Time
	eventID func() uuid.UUID
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		logg:    logg,
		now:     time.Now,
		eventID: uuid.New,
	}
}

// Emit stores the event inside tx so it is published only if the caller commits.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return ErrTransactionRequired
	}
	if err := event.normalize(); err != nil {
		return err
	}
	row, envelope, err := s.buildRow(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("queue %s: %w", event.EventType, err)
	}
	if s.logg != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = s.logg.WithEventID(ctx, envelope.EventID)
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

// buildRow wraps the payload in a versioned envelope. The envelope's event id
// is what consumers dedupe on, so it is minted here and never on publish.
func (s *Service) buildRow(event DomainEvent) (models.OutboxEvent, PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}
	version := event.Version
	if version <= 0 {
		version = defaultEnvelopeVersion
	}
	envelope := PayloadEnvelope{
		Version:    version,
		EventID:    s.eventID().String(),
		OccurredAt: occurred.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode %s envelope: %w", event.EventType, err)
	}
	return models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       dbtypes.JSON(raw),
	}, envelope, nil
}
