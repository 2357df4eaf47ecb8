package paymentwebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/kolo-backend/pkg/redis"
)

const redeliveryCounterTTL = 24 * time.Hour

// DeliveryGuard marks provider references as in flight so a redelivery that
// races the first attempt is answered without touching the database.
type DeliveryGuard struct {
	store redis.DeliveryGuard
	ttl   time.Duration
}

func NewDeliveryGuard(store redis.DeliveryGuard, ttl time.Duration) (*DeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("delivery store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &DeliveryGuard{store: store, ttl: ttl}, nil
}

// Claim returns true when the caller owns the delivery. A false result means
// another delivery of the same reference already claimed it.
func (g *DeliveryGuard) Claim(ctx context.Context, provider, reference string) (bool, error) {
	if reference == "" {
		return false, errors.New("reference is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookDeliveryKey(provider, reference), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim webhook delivery: %w", err)
	}
	if !set {
		// advisory counter, failures are ignored
		_, _ = g.store.IncrWithTTL(ctx, g.store.CounterKey("webhook_redelivery:"+provider), redeliveryCounterTTL)
	}
	return set, nil
}

// Release drops the marker so the provider's retry is processed again.
func (g *DeliveryGuard) Release(ctx context.Context, provider, reference string) error {
	if reference == "" {
		return errors.New("reference is required")
	}
	return g.store.Del(ctx, g.store.WebhookDeliveryKey(provider, reference))
}
