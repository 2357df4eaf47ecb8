package paymentwebhook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu       sync.Mutex
	keys     map[string]bool
	counters map[string]int64
	setNXErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]bool{}, counters: map[string]int64{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setNXErr != nil {
		return false, m.setNXErr
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func (m *memoryStore) WebhookDeliveryKey(provider, reference string) string {
	return "webhook:" + provider + ":" + reference
}

func (m *memoryStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memoryStore) CounterKey(name string) string {
	return "counter:" + name
}

func (m *memoryStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key]
}

func TestDeliveryGuardClaimOnce(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewDeliveryGuard(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	claimed, err := guard.Claim(ctx, "flutterwave", "FLW-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = guard.Claim(ctx, "flutterwave", "FLW-1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, int64(1), store.counters["counter:webhook_redelivery:flutterwave"])

	require.NoError(t, guard.Release(ctx, "flutterwave", "FLW-1"))
	claimed, err = guard.Claim(ctx, "flutterwave", "FLW-1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestDeliveryGuardValidation(t *testing.T) {
	_, err := NewDeliveryGuard(nil, time.Hour)
	require.Error(t, err)
	_, err = NewDeliveryGuard(newMemoryStore(), -time.Second)
	require.Error(t, err)

	guard, err := NewDeliveryGuard(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	_, err = guard.Claim(context.Background(), "monnify", "")
	require.Error(t, err)
	require.Error(t, guard.Release(context.Background(), "monnify", ""))
}

func TestDeliveryGuardPropagatesStoreErrors(t *testing.T) {
	store := newMemoryStore()
	store.setNXErr = errors.New("redis down")
	guard, err := NewDeliveryGuard(store, time.Hour)
	require.NoError(t, err)

	_, err = guard.Claim(context.Background(), "monnify", "ref")
	require.ErrorIs(t, err, store.setNXErr)
}
