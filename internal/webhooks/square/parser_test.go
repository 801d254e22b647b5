package squarewebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/smm-storefront/internal/webhooks"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
)

const testSecret = "sq-secret"

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func paymentEvent(eventID, eventType, status, reference string) []byte {
	return []byte(fmt.Sprintf(`{"event_id":%q,"type":%q,"data":{"type":"payment","id":"pay_1","object":{"payment":{"id":"pay_1","status":%q,"reference_id":%q}}}}`,
		eventID, eventType, status, reference))
}

func TestParseOutcomes(t *testing.T) {
	cases := []struct {
		status  string
		outcome webhooks.Outcome
	}{
		{"COMPLETED", webhooks.OutcomeSucceeded},
		{"FAILED", webhooks.OutcomeFailed},
		{"CANCELED", webhooks.OutcomeFailed},
		{"APPROVED", webhooks.OutcomeIgnored},
	}
	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			payload := paymentEvent("evt-"+tc.status, "payment.updated", tc.status, "sq_ref")
			event, err := Parse(payload, sign(payload), testSecret)
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, event.Outcome)
			assert.Equal(t, "evt-"+tc.status, event.ID)
			if tc.outcome != webhooks.OutcomeIgnored {
				assert.Equal(t, "sq_ref", event.IntentID)
			}
		})
	}
}

func TestParseIgnoresForeignPaymentsAndTypes(t *testing.T) {
	payload := paymentEvent("evt-1", "payment.updated", "COMPLETED", "")
	event, err := Parse(payload, sign(payload), testSecret)
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeIgnored, event.Outcome)

	payload = []byte(`{"event_id":"evt-2","type":"refund.updated","data":{"type":"refund","id":"r1","object":{}}}`)
	event, err = Parse(payload, sign(payload), testSecret)
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeIgnored, event.Outcome)
}

func TestParseRejectsUnsigned(t *testing.T) {
	payload := paymentEvent("evt-3", "payment.updated", "COMPLETED", "sq_ref")

	_, err := Parse(payload, "deadbeef", testSecret)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = Parse(payload, "", testSecret)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = Parse(payload, sign(payload), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfiguration))
}
