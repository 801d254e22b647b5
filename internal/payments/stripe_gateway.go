package payments

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/smm-storefront/internal/webhooks"
	stripewebhook "github.com/angelmondragon/smm-storefront/internal/webhooks/stripe"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
)

var errStripeClientMissing = errors.New("stripe api client not initialized")

type stripeAPI interface {
	SigningSecret() string
	API() *stripe.Client
}

type stripeGateway struct {
	client       stripeAPI
	timeout      time.Duration
	createIntent func(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
	createRefund func(ctx context.Context, params *stripe.RefundCreateParams) (*stripe.Refund, error)
}

// NewStripeGateway builds the live Stripe gateway on the client's V1
// services. Each call is bounded by timeout.
func NewStripeGateway(client stripeAPI, timeout time.Duration) Gateway {
	gw := &stripeGateway{
		client:  client,
		timeout: timeout,
		createIntent: func(context.Context, *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
			return nil, errStripeClientMissing
		},
		createRefund: func(context.Context, *stripe.RefundCreateParams) (*stripe.Refund, error) {
			return nil, errStripeClientMissing
		},
	}
	if api := client.API(); api != nil {
		gw.createIntent = api.V1PaymentIntents.Create
		gw.createRefund = api.V1Refunds.Create
	}
	return gw
}

func (g *stripeGateway) Name() enums.PaymentProvider { return enums.PaymentProviderStripe }

func (g *stripeGateway) IsDemo() bool { return false }

func (g *stripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	params.AddMetadata("order_id", strconv.FormatUint(req.OrderID, 10))
	params.AddMetadata("order_number", req.OrderNumber)

	callCtx, cancel := boundCall(ctx, g.timeout)
	defer cancel()
	intent, err := g.createIntent(callCtx, params)
	if err != nil {
		return Intent{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe payment intent")
	}
	return Intent{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

func (g *stripeGateway) ParseEvent(_ context.Context, payload []byte, signature string) (webhooks.Event, error) {
	return stripewebhook.Parse(payload, signature, g.client.SigningSecret())
}

func (g *stripeGateway) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if req.IntentID == "" {
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has no stripe intent")
	}
	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(req.IntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if req.AmountCents > 0 {
		params.Amount = stripe.Int64(req.AmountCents)
	}
	params.AddMetadata("payment_id", strconv.FormatUint(req.PaymentID, 10))

	callCtx, cancel := boundCall(ctx, g.timeout)
	defer cancel()
	result, err := g.createRefund(callCtx, params)
	if err != nil {
		return RefundResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe refund")
	}
	return RefundResult{
		Accepted: result.Status == stripe.RefundStatusSucceeded || result.Status == stripe.RefundStatusPending,
		Pending:  result.Status == stripe.RefundStatusPending,
		RefundID: result.ID,
		Status:   string(result.Status),
	}, nil
}
