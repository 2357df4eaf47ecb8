// Package idempotency lets Pub/Sub consumers process each domain event once.
//
// Delivery is at least once, so a redelivered refund_executed must not fan
// out a second round of notifications. A consumer claims the envelope's event
// id before handling it and releases the claim only when handling fails.
// Claims live at kolo:idempotency:evt:<consumer>:<event_id> and hold a random
// token, so a late release never drops a claim taken by another worker.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyClaimed means another delivery of the event was already handled
	// or is being handled right now.
	ErrAlreadyClaimed = errors.New("event already claimed")

	consumerNameRe = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
)

// Store is the Redis surface claims need.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, owner string) (bool, error)
	IdempotencyKey(scope, id string) string
}

type Manager struct {
	store    Store
	ttl      time.Duration
	newToken func() string
}

// NewManager builds a guard whose claims expire after ttl. A zero ttl keeps
// claims until they are released.
func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, newToken: uuid.NewString}, nil
}

// Claim is one consumer's hold on one event.
type Claim struct {
	store Store
	key   string
	token string
}

// Claim takes the event for consumer or returns ErrAlreadyClaimed.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (*Claim, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return nil, err
	}
	token := m.newToken()
	ok, err := m.store.SetNX(ctx, key, token, m.ttl)
	if err != nil {
		return nil, fmt.Errorf("claim %s for %s: %w", eventID, consumer, err)
	}
	if !ok {
		return nil, ErrAlreadyClaimed
	}
	return &Claim{store: m.store, key: key, token: token}, nil
}

// Release gives the event back so a redelivery is handled again. It is a
// no-op when the claim already expired or was taken over.
func (c *Claim) Release(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if _, err := c.store.CompareAndDelete(ctx, c.key, c.token); err != nil {
		return fmt.Errorf("release %s: %w", c.key, err)
	}
	return nil
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if !consumerNameRe.MatchString(consumer) {
		return "", fmt.Errorf("invalid consumer name %q", consumer)
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
