package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const consumer = "group-notifications"

type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) CompareAndDelete(_ context.Context, key, owner string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.values[key] != owner {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "kolo:idempotency:" + scope + ":" + id
}

func newTestManager(t *testing.T, store *memoryStore, ttl time.Duration) *Manager {
	t.Helper()
	manager, err := NewManager(store, ttl)
	require.NoError(t, err)
	n := 0
	manager.newToken = func() string {
		n++
		return "token-" + string(rune('0'+n))
	}
	return manager
}

func TestClaimIsExclusive(t *testing.T) {
	store := newMemoryStore()
	manager := newTestManager(t, store, 7*24*time.Hour)
	ctx := context.Background()
	eventID := uuid.New()

	claim, err := manager.Claim(ctx, consumer, eventID)
	require.NoError(t, err)
	require.NotNil(t, claim)

	key := "kolo:idempotency:evt:group-notifications:" + eventID.String()
	assert.Equal(t, "token-1", store.values[key])
	assert.Equal(t, 7*24*time.Hour, store.ttls[key])

	_, err = manager.Claim(ctx, consumer, eventID)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	_, err = manager.Claim(ctx, "audit-log", eventID)
	assert.NoError(t, err, "claims are scoped per consumer")
}

func TestReleaseAllowsReprocessing(t *testing.T) {
	store := newMemoryStore()
	manager := newTestManager(t, store, time.Hour)
	ctx := context.Background()
	eventID := uuid.New()

	claim, err := manager.Claim(ctx, consumer, eventID)
	require.NoError(t, err)
	require.NoError(t, claim.Release(ctx))

	_, err = manager.Claim(ctx, consumer, eventID)
	assert.NoError(t, err)
}

func TestStaleReleaseKeepsNewerClaim(t *testing.T) {
	store := newMemoryStore()
	manager := newTestManager(t, store, time.Hour)
	ctx := context.Background()
	eventID := uuid.New()
	key := "kolo:idempotency:evt:group-notifications:" + eventID.String()

	stale, err := manager.Claim(ctx, consumer, eventID)
	require.NoError(t, err)
	delete(store.values, key) // ttl lapsed

	_, err = manager.Claim(ctx, consumer, eventID)
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	assert.Equal(t, "token-2", store.values[key])
}

func TestClaimErrors(t *testing.T) {
	store := newMemoryStore()
	manager := newTestManager(t, store, time.Hour)
	ctx := context.Background()

	_, err := manager.Claim(ctx, consumer, uuid.Nil)
	assert.ErrorContains(t, err, "event id is required")

	_, err = manager.Claim(ctx, "Group Notifications", uuid.New())
	assert.ErrorContains(t, err, "invalid consumer name")

	store.err = errors.New("redis down")
	_, err = manager.Claim(ctx, consumer, uuid.New())
	assert.ErrorContains(t, err, "redis down")
	assert.NotErrorIs(t, err, ErrAlreadyClaimed)

	var nilClaim *Claim
	assert.NoError(t, nilClaim.Release(ctx))
}

func TestNewManagerValidates(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewManager(newMemoryStore(), -time.Second)
	assert.Error(t, err)
}
