package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

// ErrNoDecoder is returned when no decoder matches an event type and version.
var ErrNoDecoder = errors.New("no decoder registered")

// Decoder turns an envelope's data into a typed payload.
type Decoder func(data json.RawMessage) (interface{}, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry holds versioned payload decoders for subscribers.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[decoderKey]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[decoderKey]Decoder)}
}

// JSONDecoder decodes into a fresh value from factory.
func JSONDecoder(factory func() interface{}) Decoder {
	return func(data json.RawMessage) (interface{}, error) {
		out := factory()
		if err := json.Unmarshal(data, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// Register adds a decoder. A later registration for the same key replaces the earlier one.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder Decoder) {
	if decoder == nil || version <= 0 {
		return
	}
	r.mu.Lock()
	r.decoders[decoderKey{eventType: eventType, version: version}] = decoder
	r.mu.Unlock()
}

// Decode dispatches to the decoder for eventType at version.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (interface{}, error) {
	r.mu.RLock()
	decoder, ok := r.decoders[decoderKey{eventType: eventType, version: version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s v%d", ErrNoDecoder, eventType, version)
	}
	out, err := decoder(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s v%d: %w", eventType, version, err)
	}
	return out, nil
}
