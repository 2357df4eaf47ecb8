package registry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kolo-backend/pkg/config"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	"github.com/angelmondragon/kolo-backend/pkg/outbox/payloads"
)

func TestDecoderRegistryVersions(t *testing.T) {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventRefundDecided, 1, JSONDecoder(func() interface{} { return &map[string]string{} }))

	out, err := reg.Decode(enums.EventRefundDecided, 1, json.RawMessage(`{"status":"approved"}`))
	require.NoError(t, err)
	assert.Equal(t, "approved", (*out.(*map[string]string))["status"])

	_, err = reg.Decode(enums.EventRefundDecided, 2, json.RawMessage(`{}`))
	assert.True(t, errors.Is(err, ErrNoDecoder))

	_, err = reg.Decode(enums.EventRefundDecided, 1, json.RawMessage(`[1,2]`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoDecoder))
}

func TestDecoderRegistryIgnoresInvalidRegistrations(t *testing.T) {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventRefundDecided, 1, nil)
	reg.Register(enums.EventRefundDecided, 0, JSONDecoder(func() interface{} { return &struct{}{} }))

	_, err := reg.Decode(enums.EventRefundDecided, 1, json.RawMessage(`{}`))
	assert.True(t, errors.Is(err, ErrNoDecoder))
}

func TestDomainDecodersCoverRegistry(t *testing.T) {
	reg, err := NewEventRegistry(config.PubSubConfig{DomainTopic: "domain"})
	require.NoError(t, err)
	decoders := NewDomainDecoders(reg)

	out, err := decoders.Decode(enums.EventWithdrawalDecided, 1, json.RawMessage(`{"status":"rejected","approvals":1}`))
	require.NoError(t, err)
	decided, ok := out.(*payloads.WithdrawalDecidedEvent)
	require.True(t, ok, "unexpected type %T", out)
	assert.Equal(t, enums.RequestStatusRejected, decided.Status)
	assert.Equal(t, 1, decided.Approvals)

	for eventType := range reg.entries {
		_, err := decoders.Decode(eventType, 1, json.RawMessage(`{}`))
		assert.NoError(t, err, "event %s", eventType)
	}
}
