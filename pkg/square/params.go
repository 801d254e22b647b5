package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

// PaymentCreateParams encapsulates the inputs for a Square payment.
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
	BuyerEmail     string
}

func (p PaymentCreateParams) toSquareRequest(idempotencyKey string) *sq.CreatePaymentRequest {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey,
		LocationID:     ptrString(p.LocationID),
		SourceID:       p.SourceID,
	}
	if p.AmountCents > 0 {
		req.AmountMoney = moneyPtr(p.AmountCents, p.Currency)
	}
	if trimmed := strings.TrimSpace(p.Note); trimmed != "" {
		req.Note = ptrString(trimmed)
	}
	if trimmed := strings.TrimSpace(p.ReferenceID); trimmed != "" {
		req.ReferenceID = ptrString(trimmed)
	}
	if trimmed := strings.TrimSpace(p.BuyerEmail); trimmed != "" {
		req.BuyerEmailAddress = ptrString(trimmed)
	}
	return req
}

// RefundParams describes a full or partial refund of a Square payment.
type RefundParams struct {
	PaymentID      string
	AmountCents    int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

func (p RefundParams) toSquareRequest(idempotencyKey string) *sq.RefundPaymentRequest {
	req := &sq.RefundPaymentRequest{
		IdempotencyKey: idempotencyKey,
		AmountMoney:    moneyPtr(p.AmountCents, p.Currency),
		PaymentID:      ptrString(p.PaymentID),
	}
	if trimmed := strings.TrimSpace(p.Reason); trimmed != "" {
		req.Reason = ptrString(trimmed)
	}
	return req
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
