// Package webhooks holds what the payment webhooks share: the verified event
// shape each provider parser produces and the replay guard.
package webhooks

// Outcome is what a verified payment event means for the order.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeIgnored   Outcome = "ignored"
)

// Event is a verified provider notification reduced to what the payment
// state machine needs. IntentID is the value stored in
// payments.provider_intent_id.
type Event struct {
	ID       string
	Type     string
	IntentID string
	Outcome  Outcome
}
