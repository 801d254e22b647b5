package squarewebhook

import (
	"encoding/json"
	"strings"

	"github.com/angelmondragon/smm-storefront/internal/webhooks"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/square"
)

const SignatureHeader = "Square-Signature"

// Envelope is the part of a Square notification the storefront reads.
type Envelope struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Object struct {
			Payment *Payment `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

type Payment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ReferenceID string `json:"reference_id"`
}

// Parse verifies the Square-Signature header and maps payment.created and
// payment.updated notifications to an outcome keyed by the payment's
// reference id, which is what checkout stored as the intent id.
func Parse(payload []byte, header, secret string) (webhooks.Event, error) {
	if strings.TrimSpace(header) == "" {
		return webhooks.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "square signature missing")
	}
	if secret == "" {
		return webhooks.Event{}, pkgerrors.New(pkgerrors.CodeConfiguration, "square webhook secret not configured")
	}
	if !square.ValidSignature(payload, secret, header) {
		return webhooks.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "square signature mismatch")
	}

	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return webhooks.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode square event")
	}
	if envelope.EventID == "" {
		return webhooks.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "square event id missing")
	}

	event := webhooks.Event{ID: envelope.EventID, Type: envelope.Type, Outcome: webhooks.OutcomeIgnored}
	switch strings.ToLower(envelope.Type) {
	case "payment.created", "payment.updated":
	default:
		return event, nil
	}
	payment := envelope.Data.Object.Payment
	if payment == nil {
		return webhooks.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "square payment payload missing")
	}
	event.Outcome = outcomeForStatus(payment.Status)
	if event.Outcome == webhooks.OutcomeIgnored {
		return event, nil
	}
	if payment.ReferenceID == "" {
		// Payments created outside checkout carry no reference id.
		event.Outcome = webhooks.OutcomeIgnored
		return event, nil
	}
	event.IntentID = payment.ReferenceID
	return event, nil
}

func outcomeForStatus(status string) webhooks.Outcome {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED":
		return webhooks.OutcomeSucceeded
	case "FAILED", "CANCELED":
		return webhooks.OutcomeFailed
	default:
		return webhooks.OutcomeIgnored
	}
}
