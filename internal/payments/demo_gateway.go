package payments

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/smm-storefront/internal/webhooks"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
)

const (
	demoIntentPrefix = "demo_pi_"
	demoSecretPrefix = "demo_secret_"
)

// demoGateway stands in when no live backend is configured. Payments are
// confirmed through Simulate and refunds always succeed.
type demoGateway struct{}

func NewDemoGateway() Gateway { return demoGateway{} }

func (demoGateway) Name() enums.PaymentProvider { return enums.PaymentProviderDemo }

func (demoGateway) IsDemo() bool { return true }

func (demoGateway) CreateIntent(context.Context, IntentRequest) (Intent, error) {
	return Intent{
		ID:           demoIntentPrefix + uuid.NewString(),
		ClientSecret: demoSecretPrefix + uuid.NewString(),
	}, nil
}

// ParseEvent rejects everything: demo payments are confirmed only through
// Simulate, which is unavailable in production.
func (demoGateway) ParseEvent(context.Context, []byte, string) (webhooks.Event, error) {
	return webhooks.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "demo payments do not accept webhooks")
}

func (demoGateway) Refund(_ context.Context, req RefundRequest) (RefundResult, error) {
	return RefundResult{Accepted: true, RefundID: "demo_re_" + uuid.NewString(), Status: "succeeded"}, nil
}
