package payments

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/smm-storefront/internal/webhooks"
	squarewebhook "github.com/angelmondragon/smm-storefront/internal/webhooks/square"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/square"
)

const squareReferencePrefix = "sq_"

type squareAPI interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	RefundPayment(ctx context.Context, params square.RefundParams) (*sq.PaymentRefund, error)
	WebhookSecret() string
	LocationID() string
}

// ChargeRequest charges a card token produced by the Square web SDK.
type ChargeRequest struct {
	ReferenceID string
	SourceID    string
	AmountCents int64
	Currency    string
	Email       string
	Note        string
}

// ChargeResult is the Square payment created for a ChargeRequest.
type ChargeResult struct {
	PaymentID string
	Status    string
}

// Succeeded reports whether Square captured the funds.
func (r ChargeResult) Succeeded() bool { return strings.EqualFold(r.Status, "COMPLETED") }

// Failed reports whether Square rejected the card.
func (r ChargeResult) Failed() bool {
	return strings.EqualFold(r.Status, "FAILED") || strings.EqualFold(r.Status, "CANCELED")
}

// sourceCharger is implemented by gateways that charge a client-side token
// instead of confirming a provider-side intent.
type sourceCharger interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

type squareGateway struct {
	api     squareAPI
	timeout time.Duration
}

// NewSquareGateway builds the live Square gateway. Each call is bounded by
// timeout.
func NewSquareGateway(api squareAPI, timeout time.Duration) Gateway {
	return &squareGateway{api: api, timeout: timeout}
}

func (g *squareGateway) Name() enums.PaymentProvider { return enums.PaymentProviderSquare }

func (g *squareGateway) IsDemo() bool { return false }

// CreateIntent allocates the reference id the later charge carries. Square
// has no intent object; the web SDK needs the location id to tokenize.
func (g *squareGateway) CreateIntent(_ context.Context, req IntentRequest) (Intent, error) {
	if req.AmountCents <= 0 {
		return Intent{}, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	reference := squareReferencePrefix + uuid.NewString()
	return Intent{ID: reference, ClientSecret: g.api.LocationID()}, nil
}

func (g *squareGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if strings.TrimSpace(req.SourceID) == "" {
		return ChargeResult{}, pkgerrors.New(pkgerrors.CodeValidation, "source_id is required")
	}
	callCtx, cancel := boundCall(ctx, g.timeout)
	defer cancel()
	payment, err := g.api.CreatePayment(callCtx, square.PaymentCreateParams{
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		SourceID:       req.SourceID,
		IdempotencyKey: "charge-" + req.ReferenceID,
		Note:           req.Note,
		ReferenceID:    req.ReferenceID,
		BuyerEmail:     req.Email,
	})
	if err != nil {
		return ChargeResult{}, err
	}
	result := ChargeResult{}
	if payment != nil {
		if id := payment.GetID(); id != nil {
			result.PaymentID = *id
		}
		if status := payment.GetStatus(); status != nil {
			result.Status = *status
		}
	}
	return result, nil
}

func (g *squareGateway) ParseEvent(_ context.Context, payload []byte, signature string) (webhooks.Event, error) {
	return squarewebhook.Parse(payload, signature, g.api.WebhookSecret())
}

func (g *squareGateway) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if req.ExternalID == "" || req.ExternalID == req.IntentID {
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has no square payment id")
	}
	callCtx, cancel := boundCall(ctx, g.timeout)
	defer cancel()
	refund, err := g.api.RefundPayment(callCtx, square.RefundParams{
		PaymentID:      req.ExternalID,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		Reason:         req.Reason,
		IdempotencyKey: "refund-" + strconv.FormatUint(req.PaymentID, 10),
	})
	if err != nil {
		return RefundResult{}, err
	}
	result := RefundResult{}
	if refund != nil {
		result.RefundID = refund.GetID()
		if status := refund.GetStatus(); status != nil {
			result.Status = *status
		}
	}
	switch strings.ToUpper(result.Status) {
	case "COMPLETED":
		result.Accepted = true
	case "PENDING":
		result.Accepted = true
		result.Pending = true
	}
	return result, nil
}
