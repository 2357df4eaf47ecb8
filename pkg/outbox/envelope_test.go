package outbox

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

func TestDecodeEnvelope(t *testing.T) {
	id := uuid.New()
	envelope, err := DecodeEnvelope([]byte(`{"eventId":"` + id.String() + `","actor":{"userId":"` + id.String() + `","role":"user"},"data":{"amount":"10"}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, envelope.EffectiveVersion())
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, enums.UserRoleUser, envelope.Actor.Role)

	parsed, err := envelope.ID()
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestDecodeEnvelopeRejectsBadInput(t *testing.T) {
	_, err := DecodeEnvelope([]byte("not json"))
	assert.True(t, errors.Is(err, ErrMalformedEnvelope))

	_, err = DecodeEnvelope([]byte(`{"version":2,"data":null}`))
	assert.True(t, errors.Is(err, ErrEmptyEnvelopeData))

	_, err = PayloadEnvelope{EventID: "nope"}.ID()
	assert.True(t, errors.Is(err, ErrMalformedEnvelope))
}

func TestMemberActor(t *testing.T) {
	id := uuid.New()
	actor := MemberActor(id)
	assert.Equal(t, id, actor.UserID)
	assert.Equal(t, enums.UserRoleUser, actor.Role)
}
