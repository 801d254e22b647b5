package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EnvelopeVersion is written on every new outbox row.
const EnvelopeVersion = 1

// PayloadEnvelope wraps every order event payload in outbox_events and on
// the wire.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      string          `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

var ErrMissingEventID = errors.New("envelope has no event id")

// DecodeEnvelope parses raw. When the envelope carries no event id the
// fallback (usually the event_id message attribute) is used instead.
func DecodeEnvelope(raw []byte, fallbackEventID string) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	envelope.EventID = strings.TrimSpace(envelope.EventID)
	if envelope.EventID == "" {
		envelope.EventID = strings.TrimSpace(fallbackEventID)
	}
	if envelope.EventID == "" {
		return PayloadEnvelope{}, ErrMissingEventID
	}
	if envelope.Version == 0 {
		envelope.Version = EnvelopeVersion
	}
	return envelope, nil
}
