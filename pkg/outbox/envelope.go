package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

const defaultEnvelopeVersion = 1

var (
	// ErrMalformedEnvelope is returned when a stored or received envelope cannot be parsed.
	ErrMalformedEnvelope = errors.New("malformed outbox envelope")
	// ErrEmptyEnvelopeData is returned when the envelope carries no domain payload.
	ErrEmptyEnvelopeData = errors.New("outbox envelope has no data")
)

// ActorRef is the member whose action produced the event.
type ActorRef struct {
	UserID uuid.UUID      `json:"userId"`
	Role   enums.UserRole `json:"role,omitempty"`
}

// MemberActor tags an event as raised by a regular group member.
func MemberActor(userID uuid.UUID) *ActorRef {
	return &ActorRef{UserID: userID, Role: enums.UserRoleUser}
}

// PayloadEnvelope wraps every domain payload written to outbox_events and
// published to pub/sub.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// EffectiveVersion treats a missing version as the first schema.
func (e PayloadEnvelope) EffectiveVersion() int {
	if e.Version <= 0 {
		return defaultEnvelopeVersion
	}
	return e.Version
}

// ID parses the envelope's event id.
func (e PayloadEnvelope) ID() (uuid.UUID, error) {
	id, err := uuid.Parse(e.EventID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: event id %q", ErrMalformedEnvelope, e.EventID)
	}
	return id, nil
}

// DecodeEnvelope parses raw bytes into an envelope and rejects empty data.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return envelope, ErrEmptyEnvelopeData
	}
	return envelope, nil
}
