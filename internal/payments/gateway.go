package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/smm-storefront/internal/webhooks"
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
)

// Gateway is one card backend. Live gateways talk to the provider; the demo
// gateway never leaves the process.
type Gateway interface {
	Name() enums.PaymentProvider
	IsDemo() bool
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	ParseEvent(ctx context.Context, payload []byte, signature string) (webhooks.Event, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// IntentRequest describes the amount to collect for one order group.
type IntentRequest struct {
	OrderID     uint64
	OrderNumber string
	AmountCents int64
	Currency    string
	Email       string
}

// Intent is what the client needs to complete the payment.
type Intent struct {
	ID           string
	ClientSecret string
}

// RefundRequest refunds a completed payment in full.
type RefundRequest struct {
	PaymentID   uint64
	IntentID    string
	ExternalID  string
	AmountCents int64
	Currency    string
	Reason      string
}

// RefundResult reports the gateway's answer. Accepted is false when the
// gateway declined; that is not an error. Pending marks an accepted refund
// the card network has not settled yet; it is recorded as refunded.
type RefundResult struct {
	Accepted bool
	Pending  bool
	RefundID string
	Status   string
}

const metadataSquarePaymentID = "square_payment_id"

// boundCall caps a gateway call at timeout on top of whatever deadline the
// caller already carries.
func boundCall(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// ToCents converts a 2-decimal amount to the integer minor units gateways use.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

// ExternalPaymentID returns the provider's own payment id when it differs
// from the intent id (Square), else the intent id.
func ExternalPaymentID(payment models.Payment) string {
	if len(payment.Metadata) > 0 {
		var meta map[string]string
		if err := json.Unmarshal(payment.Metadata, &meta); err == nil {
			if id := meta[metadataSquarePaymentID]; id != "" {
				return id
			}
		}
	}
	return payment.IntentID()
}

// Registry routes work to the gateway that owns a payment row.
type Registry struct {
	gateways map[enums.PaymentProvider]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[enums.PaymentProvider]Gateway, len(gateways))}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		r.gateways[gw.Name()] = gw
	}
	return r
}

// For returns the gateway for provider or a configuration error when that
// backend is not configured in this process.
func (r *Registry) For(provider enums.PaymentProvider) (Gateway, error) {
	if r != nil {
		if gw, ok := r.gateways[provider]; ok {
			return gw, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConfiguration, fmt.Sprintf("payment provider %q is not configured", provider))
}
