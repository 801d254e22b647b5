package stripewebhook

import (
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/smm-storefront/internal/webhooks"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
)

const SignatureHeader = "Stripe-Signature"

var outcomes = map[stripe.EventType]webhooks.Outcome{
	stripe.EventTypePaymentIntentSucceeded:     webhooks.OutcomeSucceeded,
	stripe.EventTypePaymentIntentPaymentFailed: webhooks.OutcomeFailed,
	stripe.EventTypePaymentIntentCanceled:      webhooks.OutcomeFailed,
}

// Parse verifies the Stripe-Signature header against secret and reduces the
// event to the payment intent it concerns. Event types other than the
// payment_intent outcomes come back as OutcomeIgnored.
func Parse(payload []byte, header, secret string) (webhooks.Event, error) {
	if strings.TrimSpace(header) == "" {
		return webhooks.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}
	if secret == "" {
		return webhooks.Event{}, pkgerrors.New(pkgerrors.CodeConfiguration, "stripe webhook secret not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return webhooks.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify stripe signature")
	}

	parsed := webhooks.Event{ID: event.ID, Type: string(event.Type), Outcome: webhooks.OutcomeIgnored}
	outcome, ok := outcomes[event.Type]
	if !ok {
		return parsed, nil
	}
	if event.Data == nil {
		return webhooks.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return webhooks.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	if intent.ID == "" {
		return webhooks.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	parsed.IntentID = intent.ID
	parsed.Outcome = outcome
	return parsed, nil
}
